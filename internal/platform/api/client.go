// Package api is a client for the platform daemon's HTTP API. It reads the
// whole chassis as one JSON document, caches it briefly, and hands out
// device handles that resolve their values from the latest document.
package api

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/gofiber/fiber/v2"
)

const (
	snapshotPath   = "/api/v1/chassis"
	defaultTimeout = 3 * time.Second
	defaultTTL     = 2 * time.Second
)

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTTL sets how long a fetched document answers reads.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		c.ttl = d
	}
}

type Client struct {
	base    string
	timeout time.Duration
	ttl     time.Duration
	log     logger.Logger

	mu        sync.Mutex
	snap      *Snapshot
	idx       *index
	fetchedAt time.Time
}

var _ platform.Chassis = (*Client)(nil)

func New(baseURL string, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		ttl:     defaultTTL,
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) snapshot() (*Snapshot, *index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && time.Since(c.fetchedAt) < c.ttl {
		return c.snap, c.idx, nil
	}

	snap := &Snapshot{}
	code, body, errs := fiber.Get(c.base + snapshotPath).Timeout(c.timeout).Struct(snap)
	if len(errs) > 0 {
		return nil, nil, errors.New().Wrap(ErrRequestFailed, errs[0])
	}
	if code != fiber.StatusOK {
		return nil, nil, errors.New().WithMessage(ErrBadStatus,
			fmt.Sprintf("GET %s: %d %s", snapshotPath, code, strings.TrimSpace(string(body))))
	}

	c.snap = snap
	c.idx = newIndex(snap)
	c.fetchedAt = time.Now()
	c.log.Debug().
		Int("fans", len(c.idx.fans)).
		Int("thermals", len(c.idx.thermals)).
		Int("sfps", len(c.idx.sfps)).
		Msg("Fetched chassis snapshot")
	return c.snap, c.idx, nil
}

func (c *Client) invalidate() {
	c.mu.Lock()
	c.snap = nil
	c.idx = nil
	c.mu.Unlock()
}

func (c *Client) setFanSpeed(name string, speed float64) error {
	path := "/api/v1/fans/" + url.PathEscape(name) + "/speed"
	code, body, errs := fiber.Put(c.base + path).
		Timeout(c.timeout).
		JSON(speedRequest{Speed: speed}).
		Bytes()
	if len(errs) > 0 {
		return errors.New().Wrap(ErrRequestFailed, errs[0])
	}
	if code < 200 || code >= 300 {
		return errors.New().WithMessage(ErrBadStatus,
			fmt.Sprintf("PUT %s: %d %s", path, code, strings.TrimSpace(string(body))))
	}
	c.invalidate()
	return nil
}

func (c *Client) fans(docs []FanDoc) []platform.FanDevice {
	out := make([]platform.FanDevice, 0, len(docs))
	for _, d := range docs {
		out = append(out, &fan{c: c, name: d.Name})
	}
	return out
}

func (c *Client) thermals(docs []ThermalDoc) []platform.TempDevice {
	out := make([]platform.TempDevice, 0, len(docs))
	for _, d := range docs {
		out = append(out, &thermal{c: c, name: d.Name})
	}
	return out
}

func (c *Client) AllFans() ([]platform.FanDevice, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return c.fans(snap.Fans), nil
}

func (c *Client) AllFanDrawers() ([]platform.FanDrawer, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]platform.FanDrawer, 0, len(snap.FanDrawers))
	for _, d := range snap.FanDrawers {
		out = append(out, &fanDrawer{name: d.Name, fans: c.fans(d.Fans)})
	}
	return out, nil
}

func (c *Client) AllPsus() ([]platform.Psu, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]platform.Psu, 0, len(snap.Psus))
	for _, p := range snap.Psus {
		out = append(out, &psu{
			c:        c,
			name:     p.Name,
			fans:     c.fans(p.Fans),
			thermals: c.thermals(p.Thermals),
		})
	}
	return out, nil
}

func (c *Client) AllThermals() ([]platform.TempDevice, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return c.thermals(snap.Thermals), nil
}

func (c *Client) AllSfps() ([]platform.Sfp, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]platform.Sfp, 0, len(snap.Sfps))
	for _, s := range snap.Sfps {
		out = append(out, &sfp{c: c, name: s.Name})
	}
	return out, nil
}

func (c *Client) AllModules() ([]platform.Module, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	out := make([]platform.Module, 0, len(snap.Modules))
	for _, m := range snap.Modules {
		out = append(out, &module{
			name:     m.Name,
			slot:     m.Slot,
			fans:     c.fans(m.Fans),
			thermals: c.thermals(m.Thermals),
		})
	}
	return out, nil
}

func (c *Client) MySlot() (int, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return 0, err
	}
	return snap.MySlot, nil
}

func (c *Client) NumModules() (int, error) {
	snap, _, err := c.snapshot()
	if err != nil {
		return 0, err
	}
	return snap.NumModules, nil
}
