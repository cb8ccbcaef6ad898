// Package stale keeps stored embeddings consistent with entity state:
// marking records stale, cascading staleness to dependent entities,
// and regenerating embeddings in the background without blocking
// writers.
package stale

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/florinutz/narra-core/internal/compose"
	"github.com/florinutz/narra-core/internal/corelog"
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/embedprovider"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/store"
	"github.com/florinutz/narra-core/internal/vecmath"
)

// Manager implements mark_stale / mark_related_stale / spawn_regeneration
// / regenerate over a store and an embedding provider.
type Manager struct {
	store    *store.Store
	provider embedprovider.Provider
	debounce *debounceTable
	log      *zap.SugaredLogger
}

func NewManager(s *store.Store, p embedprovider.Provider) *Manager {
	return &Manager{
		store:    s,
		provider: p,
		debounce: newDebounceTable(),
		log:      corelog.Sugar(),
	}
}

// MarkStale sets embedding_stale = true on entityID. Idempotent. Also
// invalidates any cached ML annotations for entityID, since annotations
// go stale whenever their owning entity does.
func (m *Manager) MarkStale(entityID string) error {
	kind, _, err := model.ParseEntityID(entityID)
	if err != nil {
		return err
	}
	if err := m.store.SetEmbeddingStale(kind, entityID, true); err != nil {
		return err
	}
	if err := m.store.MarkAnnotationsStale(entityID); err != nil {
		m.log.Warnw("mark annotations stale failed", "entity_id", entityID, "error", err)
	}
	return nil
}

// MarkRelatedStale cascades staleness one relates_to hop out from a
// character. Non-character entities are a no-op.
func (m *Manager) MarkRelatedStale(entityID string) error {
	kind, _, err := model.ParseEntityID(entityID)
	if err != nil {
		return err
	}
	if kind != model.KindCharacter {
		return nil
	}
	neighbours, err := m.store.NeighbourCharacterIDs(entityID)
	if err != nil {
		return err
	}
	for _, n := range neighbours {
		if err := m.store.SetEmbeddingStale(model.KindCharacter, n, true); err != nil {
			return err
		}
	}
	return nil
}

// SpawnRegeneration fire-and-forgets a regeneration task, subject to
// the 2-second debounce window. Failures are logged, never returned,
// since there is no caller left to hand them to.
func (m *Manager) SpawnRegeneration(entityID, eventID string) {
	if !m.debounce.shouldSpawn(entityID) {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorw("regeneration panicked", "entity_id", entityID, "panic", r)
			}
		}()
		if err := m.Regenerate(context.Background(), entityID, eventID); err != nil {
			m.log.Warnw("regeneration failed, entity remains stale", "entity_id", entityID, "error", err)
		}
	}()
}

// Regenerate is the synchronous, awaitable variant used for backfill
// and for callers that need to observe completion.
func (m *Manager) Regenerate(ctx context.Context, entityID, eventID string) error {
	if !m.provider.IsAvailable() {
		return corerr.ServiceUnavailable("embedding provider not loaded")
	}
	kind, _, err := model.ParseEntityID(entityID)
	if err != nil {
		return err
	}
	switch kind {
	case model.KindCharacter:
		return m.regenerateCharacter(ctx, entityID, eventID)
	case model.KindLocation:
		return m.regenerateLocation(ctx, entityID)
	case model.KindEvent:
		return m.regenerateEvent(ctx, entityID)
	case model.KindScene:
		return m.regenerateScene(ctx, entityID)
	case model.KindKnowledge:
		return m.regenerateKnowledge(ctx, entityID, eventID)
	case model.KindRelatesTo:
		return m.regenerateRelatesTo(ctx, entityID, eventID)
	case model.KindPerceives:
		return m.regeneratePerceives(ctx, entityID, eventID)
	default:
		return corerr.Validation("entity kind %q does not carry an embedding", kind)
	}
}

// appendSnapshotIfTracked writes an arc_snapshot for arc-trackable
// kinds. A snapshot-write failure is logged and swallowed: the
// embedding update that follows still proceeds (history loses an
// entry, the entity stays current).
func (m *Manager) appendSnapshotIfTracked(kind model.Kind, entityID string, previous, next model.Vector, eventID string) {
	if !kind.ArcTrackable() {
		return
	}
	snap := &model.ArcSnapshot{
		ID:         uuid.NewString(),
		EntityID:   entityID,
		EntityType: kind.FriendlyName(),
		Embedding:  next,
		EventID:    eventID,
	}
	if len(previous) > 0 {
		d := vecmath.Distance(previous, next)
		snap.DeltaMagnitude = &d
	}
	if err := m.store.AppendArcSnapshot(snap); err != nil {
		m.log.Warnw("arc snapshot write failed", "entity_id", entityID, "error", err)
	}
}

func (m *Manager) regenerateCharacter(ctx context.Context, id, eventID string) error {
	c, err := m.store.GetCharacter(id)
	if err != nil {
		return err
	}
	previous := c.Embedding

	outbound, err := m.store.RelatesToForCharacter(id)
	if err != nil {
		return err
	}
	inbound, err := m.store.PerceivesOfTarget(id)
	if err != nil {
		return err
	}
	scenes, err := m.store.ScenesForCharacter(id)
	if err != nil {
		return err
	}
	knowledge, err := m.store.KnowledgeForCharacter(id)
	if err != nil {
		return err
	}
	cctx := compose.CharacterContext{Outbound: outbound, Inbound: inbound, Scenes: scenes, Knowledge: knowledge}

	newComposite := compose.Character(c, cctx)
	if newComposite == c.CompositeText {
		c.EmbeddingStale = false
		return m.store.UpsertCharacter(c)
	}

	texts := []string{
		newComposite,
		compose.CharacterFacet(c, cctx, model.FacetIdentity),
		compose.CharacterFacet(c, cctx, model.FacetPsychology),
		compose.CharacterFacet(c, cctx, model.FacetSocial),
		compose.CharacterFacet(c, cctx, model.FacetNarrative),
	}
	vecs, err := m.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return corerr.Compute(err, "embed character %s", id)
	}

	m.appendSnapshotIfTracked(model.KindCharacter, id, previous, vecs[0], eventID)

	c.CompositeText = newComposite
	c.Embedding = vecs[0]
	c.IdentityEmbedding = vecs[1]
	c.PsychologyEmbedding = vecs[2]
	c.SocialEmbedding = vecs[3]
	c.NarrativeEmbedding = vecs[4]
	c.EmbeddingStale = false
	return m.store.UpsertCharacter(c)
}

func (m *Manager) regenerateLocation(ctx context.Context, id string) error {
	l, err := m.store.GetLocation(id)
	if err != nil {
		return err
	}
	var parentName string
	if l.ParentID != "" {
		if parent, err := m.store.GetLocation(l.ParentID); err == nil {
			parentName = parent.Name
		}
	}
	newComposite := compose.Location(l, parentName)
	if newComposite == l.CompositeText {
		l.EmbeddingStale = false
		return m.store.UpsertLocation(l)
	}
	vec, err := m.provider.EmbedOne(ctx, newComposite)
	if err != nil {
		return corerr.Compute(err, "embed location %s", id)
	}
	l.CompositeText = newComposite
	l.Embedding = vec
	l.EmbeddingStale = false
	return m.store.UpsertLocation(l)
}

func (m *Manager) regenerateEvent(ctx context.Context, id string) error {
	e, err := m.store.GetEvent(id)
	if err != nil {
		return err
	}
	newComposite := compose.Event(e)
	if newComposite == e.CompositeText {
		e.EmbeddingStale = false
		return m.store.UpsertEvent(e)
	}
	vec, err := m.provider.EmbedOne(ctx, newComposite)
	if err != nil {
		return corerr.Compute(err, "embed event %s", id)
	}
	e.CompositeText = newComposite
	e.Embedding = vec
	e.EmbeddingStale = false
	return m.store.UpsertEvent(e)
}

func (m *Manager) regenerateScene(ctx context.Context, id string) error {
	sc, err := m.store.GetScene(id)
	if err != nil {
		return err
	}
	var sctx compose.SceneContext
	if sc.EventID != "" {
		if ev, err := m.store.GetEvent(sc.EventID); err == nil {
			sctx.EventTitle = ev.Title
		}
	}
	if sc.PrimaryLocationID != "" {
		if loc, err := m.store.GetLocation(sc.PrimaryLocationID); err == nil {
			sctx.PrimaryLocation = loc.Name
		}
	}
	for _, locID := range sc.SecondaryLocations {
		if loc, err := m.store.GetLocation(locID); err == nil {
			sctx.SecondaryLocations = append(sctx.SecondaryLocations, loc.Name)
		}
	}
	for _, charID := range sc.Participants {
		if c, err := m.store.GetCharacter(charID); err == nil {
			sctx.ParticipantNames = append(sctx.ParticipantNames, c.Name)
		}
	}

	newComposite := compose.Scene(sc, sctx)
	if newComposite == sc.CompositeText {
		sc.EmbeddingStale = false
		return m.store.UpsertScene(sc)
	}
	vec, err := m.provider.EmbedOne(ctx, newComposite)
	if err != nil {
		return corerr.Compute(err, "embed scene %s", id)
	}
	sc.CompositeText = newComposite
	sc.Embedding = vec
	sc.EmbeddingStale = false
	return m.store.UpsertScene(sc)
}

func (m *Manager) regenerateKnowledge(ctx context.Context, id, eventID string) error {
	k, err := m.store.GetKnowledge(id)
	if err != nil {
		return err
	}
	previous := k.Embedding

	var ownerName string
	if k.CharacterID != "" {
		if c, err := m.store.GetCharacter(k.CharacterID); err == nil {
			ownerName = c.Name
		}
	}
	newComposite := compose.Knowledge(k, ownerName)
	if newComposite == k.CompositeText {
		k.EmbeddingStale = false
		return m.store.UpsertKnowledge(k)
	}
	vec, err := m.provider.EmbedOne(ctx, newComposite)
	if err != nil {
		return corerr.Compute(err, "embed knowledge %s", id)
	}
	m.appendSnapshotIfTracked(model.KindKnowledge, id, previous, vec, eventID)
	k.CompositeText = newComposite
	k.Embedding = vec
	k.EmbeddingStale = false
	return m.store.UpsertKnowledge(k)
}

func (m *Manager) regenerateRelatesTo(ctx context.Context, id, eventID string) error {
	r, err := m.store.GetRelatesTo(id)
	if err != nil {
		return err
	}
	previous := r.Embedding

	rctx := compose.RelatesToContext{}
	if from, err := m.store.GetCharacter(r.FromID); err == nil {
		rctx.FromName = from.Name
	}
	if to, err := m.store.GetCharacter(r.ToID); err == nil {
		rctx.ToName = to.Name
	}

	newComposite := compose.RelatesTo(r, rctx)
	if newComposite == r.CompositeText {
		r.EmbeddingStale = false
		return m.store.UpsertRelatesTo(r)
	}
	vec, err := m.provider.EmbedOne(ctx, newComposite)
	if err != nil {
		return corerr.Compute(err, "embed relates_to %s", id)
	}
	m.appendSnapshotIfTracked(model.KindRelatesTo, id, previous, vec, eventID)
	r.CompositeText = newComposite
	r.Embedding = vec
	r.EmbeddingStale = false
	return m.store.UpsertRelatesTo(r)
}

func (m *Manager) regeneratePerceives(ctx context.Context, id, eventID string) error {
	p, err := m.store.GetPerceives(id)
	if err != nil {
		return err
	}
	previous := p.Embedding

	pctx := compose.PerceivesContext{}
	if observer, err := m.store.GetCharacter(p.FromID); err == nil {
		pctx.ObserverName = observer.Name
	}
	if target, err := m.store.GetCharacter(p.ToID); err == nil {
		pctx.TargetName = target.Name
	}
	knowledgeOfTarget, err := m.store.KnowsAboutTarget(p.ToID, 5)
	if err != nil {
		return err
	}
	pctx.KnowledgeOfTarget = knowledgeOfTarget
	sharedScenes, err := m.store.SharedScenes(p.FromID, p.ToID)
	if err != nil {
		return err
	}
	if len(sharedScenes) > 5 {
		sharedScenes = sharedScenes[:5]
	}
	pctx.SharedScenes = sharedScenes

	newComposite := compose.Perceives(p, pctx)
	if newComposite == p.CompositeText {
		p.EmbeddingStale = false
		return m.store.UpsertPerceives(p)
	}
	vec, err := m.provider.EmbedOne(ctx, newComposite)
	if err != nil {
		return corerr.Compute(err, "embed perceives %s", id)
	}
	m.appendSnapshotIfTracked(model.KindPerceives, id, previous, vec, eventID)
	p.CompositeText = newComposite
	p.Embedding = vec
	p.EmbeddingStale = false
	return m.store.UpsertPerceives(p)
}
