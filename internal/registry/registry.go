// Package registry owns the in-memory map of channel registrations
// (guild -> category -> channel) and writes it through to a storage.Store
// on every mutation.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"gamebridge/internal/category"
	"gamebridge/internal/errs"
	"gamebridge/internal/eventbus"
	"gamebridge/internal/storage"
	logx "gamebridge/pkg/logx"
)

type (
	GuildID   = snowflake.ID
	ChannelID = snowflake.ID
)

// Registry is a detached copy of the registrations.
type Registry map[GuildID]map[category.Category]ChannelID

// Len counts (guild, category) pairs.
func (r Registry) Len() int {
	n := 0
	for _, cats := range r {
		n += len(cats)
	}
	return n
}

// Destination is one registration for a category.
type Destination struct {
	GuildID   GuildID
	ChannelID ChannelID
}

// SetEvent is the payload of eventbus.TopicRegistrySet.
type SetEvent struct {
	GuildID   GuildID
	Category  category.Category
	ChannelID ChannelID
	Previous  ChannelID // zero when the pair was new
	Persisted bool
}

// Service is the single authority over the registry. It is safe for
// concurrent use; no lock is held while the store writes.
type Service struct {
	store   storage.Store
	catalog *category.Catalog
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.RWMutex
	entries Registry
	version uint64

	saveMu    sync.Mutex
	savedVers uint64
}

type Option func(*Service)

func WithBus(b eventbus.Bus) Option { return func(s *Service) { s.bus = b } }

func WithLogger(l logx.Logger) Option { return func(s *Service) { s.log = l } }

// New creates an empty service backed by store.
func New(store storage.Store, catalog *category.Catalog, opts ...Option) *Service {
	s := &Service{store: store, catalog: catalog, entries: Registry{}}
	for _, o := range opts {
		o(s)
	}
	if s.catalog == nil {
		s.catalog = category.MustDefault()
	}
	return s
}

// Load replaces the in-memory registry with the persisted one. IDs that are
// not snowflakes make the whole document untrusted. Categories missing from
// the catalog are kept but never routed.
func (s *Service) Load(ctx context.Context) error {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return err
	}
	reg, err := decode(doc)
	if err != nil {
		return err
	}
	for g, cats := range reg {
		for c := range cats {
			if _, ok := s.catalog.Lookup(c); !ok {
				s.log.Warn("registration for unconfigured category kept",
					logx.Stringer("guild_id", g),
					logx.String("category", string(c)),
				)
			}
		}
	}

	s.mu.Lock()
	s.entries = reg
	s.version++
	v := s.version
	s.mu.Unlock()

	s.saveMu.Lock()
	s.savedVers = v
	s.saveMu.Unlock()

	s.log.Info("registry loaded", logx.Int("entries", reg.Len()), logx.Int("guilds", len(reg)))
	return nil
}

func decode(doc storage.Document) (Registry, error) {
	reg := make(Registry, len(doc))
	for rawGuild, cats := range doc {
		g, err := snowflake.Parse(rawGuild)
		if err != nil || g == 0 {
			return nil, errs.CorruptState(err, "registry has invalid guild id "+rawGuild)
		}
		inner := make(map[category.Category]ChannelID, len(cats))
		for rawCat, rawCh := range cats {
			if rawCat == "" {
				return nil, errs.CorruptState(nil, "registry has an empty category for guild "+rawGuild)
			}
			ch, err := snowflake.Parse(rawCh)
			if err != nil || ch == 0 {
				return nil, errs.CorruptState(err, "registry has invalid channel id "+rawCh)
			}
			inner[category.Category(rawCat)] = ch
		}
		if len(inner) > 0 {
			reg[g] = inner
		}
	}
	return reg, nil
}

func encode(reg Registry) storage.Document {
	doc := make(storage.Document, len(reg))
	for g, cats := range reg {
		inner := make(map[string]string, len(cats))
		for c, ch := range cats {
			inner[string(c)] = ch.String()
		}
		doc[g.String()] = inner
	}
	return doc
}

// Get returns the channel registered for (guild, cat).
func (s *Service) Get(guild GuildID, cat category.Category) (ChannelID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.entries[guild][cat]
	return ch, ok
}

// AllForCategory returns every registration for cat, ordered by guild ID.
// The slice is a snapshot; later mutations do not affect it.
func (s *Service) AllForCategory(cat category.Category) []Destination {
	s.mu.RLock()
	out := make([]Destination, 0, len(s.entries))
	for g, cats := range s.entries {
		if ch, ok := cats[cat]; ok {
			out = append(out, Destination{GuildID: g, ChannelID: ch})
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// ForGuild returns a copy of one guild's registrations.
func (s *Service) ForGuild(guild GuildID) map[category.Category]ChannelID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[category.Category]ChannelID, len(s.entries[guild]))
	for c, ch := range s.entries[guild] {
		out[c] = ch
	}
	return out
}

// Snapshot returns a deep copy of the whole registry.
func (s *Service) Snapshot() Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneLocked()
}

func (s *Service) cloneLocked() Registry {
	out := make(Registry, len(s.entries))
	for g, cats := range s.entries {
		inner := make(map[category.Category]ChannelID, len(cats))
		for c, ch := range cats {
			inner[c] = ch
		}
		out[g] = inner
	}
	return out
}

// Len counts registrations.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries.Len()
}

// Set registers channel for (guild, cat), replacing any previous channel,
// and persists the registry. The in-memory update stands even when the
// save fails; the returned error is then a PERSIST_FAILED envelope.
func (s *Service) Set(ctx context.Context, guild GuildID, cat category.Category, channel ChannelID) error {
	if guild == 0 || channel == 0 {
		return errs.Validation("guild and channel are required", nil)
	}
	if _, ok := s.catalog.Lookup(cat); !ok {
		return errs.Validation("unknown category", map[string]any{"category": string(cat)})
	}

	s.mu.Lock()
	cats := s.entries[guild]
	if cats == nil {
		cats = map[category.Category]ChannelID{}
		s.entries[guild] = cats
	}
	prev := cats[cat]
	cats[cat] = channel
	s.version++
	v := s.version
	snap := s.cloneLocked()
	s.mu.Unlock()

	err := s.persist(ctx, v, snap)
	if err != nil {
		s.log.Error("registry save failed",
			logx.Stringer("guild_id", guild),
			logx.String("category", string(cat)),
			logx.Stringer("channel_id", channel),
			logx.Err(err),
		)
	} else {
		s.log.Info("channel registered",
			logx.Stringer("guild_id", guild),
			logx.String("category", string(cat)),
			logx.Stringer("channel_id", channel),
		)
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Topic: eventbus.TopicRegistrySet, Data: SetEvent{
			GuildID:   guild,
			Category:  cat,
			ChannelID: channel,
			Previous:  prev,
			Persisted: err == nil,
		}})
	}
	return err
}

// persist writes snap unless a newer version is already on disk.
func (s *Service) persist(ctx context.Context, v uint64, snap Registry) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if v <= s.savedVers {
		return nil
	}
	if err := s.store.Save(ctx, encode(snap)); err != nil {
		return errs.Persist(err, map[string]any{"version": v})
	}
	s.savedVers = v
	return nil
}

// Flush saves the current registry, e.g. after an earlier save failed.
func (s *Service) Flush(ctx context.Context) error {
	s.mu.RLock()
	v := s.version
	snap := s.cloneLocked()
	s.mu.RUnlock()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if v < s.savedVers {
		return nil
	}
	if err := s.store.Save(ctx, encode(snap)); err != nil {
		return errs.Persist(err, map[string]any{"version": v})
	}
	s.savedVers = v
	return nil
}
