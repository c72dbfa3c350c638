package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/brickctl/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Opener opens one kind of link from the shared config.
type Opener func(Config) (Channel, error)

// Prober opens the first link that answers, in Config.Order.
type Prober struct {
	Config  Config
	Openers map[string]Opener
}

func NewProber(cfg Config) *Prober {
	return &Prober{
		Config: cfg,
		Openers: map[string]Opener{
			NameUSB: func(c Config) (Channel, error) {
				return OpenUSB(c.USB)
			},
			NameBluetooth: func(c Config) (Channel, error) {
				return OpenBluetooth(c.Bluetooth)
			},
		},
	}
}

// Open returns the first channel that opens. When every link fails the
// error is a TransportError joining each attempt's cause.
func (p *Prober) Open(ctx context.Context) (Channel, error) {
	order := p.Config.Order
	if len(order) == 0 {
		order = DefaultConfig().Order
	}
	errs := []error{protocol.ErrNoDevice}
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, protocol.TransportError("probe", err)
		}
		open, ok := p.Openers[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownLink, name))
			continue
		}
		ch, err := open(p.Config)
		if err != nil {
			log.Debug().Str("link", name).Err(err).Msg("probe failed")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		log.Info().Str("link", name).Int("max_frame", ch.MaxFrame()).Msg("connection established")
		return ch, nil
	}
	return nil, protocol.TransportError("probe", errors.Join(errs...))
}
