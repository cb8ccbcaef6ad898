package orchestrate

import (
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
)

func invalidPayload(kind MutationKind, want string) error {
	return corerr.Validation("mutation kind %q requires Entity of type %s", kind, want)
}

// mutateUpsert stores req.Entity and runs the staleness cascade that
// corresponds to its kind, per the §5 mutation lifecycle: store write,
// embedding_stale=true, regeneration spawned, related entities marked
// stale.
func (c *Coordinator) mutateUpsert(req MutationRequest) (*MutationResponse, error) {
	switch req.Kind {
	case MutationCharacter:
		ch, ok := req.Entity.(*model.Character)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Character")
		}
		if err := c.store.UpsertCharacter(ch); err != nil {
			return nil, err
		}
		if err := c.stale.OnCharacterFieldsChanged(ch.ID); err != nil {
			return nil, err
		}
		return &MutationResponse{Entity: ch, Impact: "embedding_stale; regeneration spawned for character and its relates_to edges"}, nil

	case MutationLocation:
		l, ok := req.Entity.(*model.Location)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Location")
		}
		if err := c.store.UpsertLocation(l); err != nil {
			return nil, err
		}
		if err := c.stale.MarkStale(l.ID); err != nil {
			return nil, err
		}
		c.stale.SpawnRegeneration(l.ID, req.EventID)
		return &MutationResponse{Entity: l, Impact: "embedding_stale; regeneration spawned"}, nil

	case MutationEvent:
		e, ok := req.Entity.(*model.Event)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Event")
		}
		if err := c.store.UpsertEvent(e); err != nil {
			return nil, err
		}
		if err := c.stale.MarkStale(e.ID); err != nil {
			return nil, err
		}
		c.stale.SpawnRegeneration(e.ID, req.EventID)
		return &MutationResponse{Entity: e, Impact: "embedding_stale; regeneration spawned"}, nil

	case MutationScene:
		sc, ok := req.Entity.(*model.Scene)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Scene")
		}
		if err := c.store.UpsertScene(sc); err != nil {
			return nil, err
		}
		if err := c.stale.MarkStale(sc.ID); err != nil {
			return nil, err
		}
		c.stale.SpawnRegeneration(sc.ID, req.EventID)
		return &MutationResponse{Entity: sc, Impact: "embedding_stale; regeneration spawned"}, nil

	case MutationKnowledge:
		k, ok := req.Entity.(*model.Knowledge)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Knowledge")
		}
		if err := c.store.UpsertKnowledge(k); err != nil {
			return nil, err
		}
		if err := c.stale.MarkStale(k.ID); err != nil {
			return nil, err
		}
		c.stale.SpawnRegeneration(k.ID, req.EventID)
		return &MutationResponse{Entity: k, Impact: "embedding_stale; regeneration spawned"}, nil

	case MutationRelatesTo:
		r, ok := req.Entity.(*model.RelatesTo)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.RelatesTo")
		}
		if err := c.store.UpsertRelatesTo(r); err != nil {
			return nil, err
		}
		if err := c.stale.OnRelatesToChanged(r); err != nil {
			return nil, err
		}
		return &MutationResponse{Entity: r, Impact: "both endpoint characters and shared perceives edges marked stale"}, nil

	case MutationPerceives:
		p, ok := req.Entity.(*model.Perceives)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Perceives")
		}
		if err := c.store.UpsertPerceives(p); err != nil {
			return nil, err
		}
		if err := c.stale.OnPerceivesChanged(p.ID); err != nil {
			return nil, err
		}
		return &MutationResponse{Entity: p, Impact: "embedding_stale; regeneration spawned"}, nil

	case MutationKnows:
		k, ok := req.Entity.(*model.Knows)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.Knows")
		}
		if err := k.Validate(); err != nil {
			return nil, err
		}
		if err := c.store.CreateKnows(k); err != nil {
			return nil, err
		}
		return &MutationResponse{Entity: k, Impact: "append-only; no embedding to invalidate"}, nil

	case MutationUniverse:
		f, ok := req.Entity.(*model.UniverseFact)
		if !ok {
			return nil, invalidPayload(req.Kind, "*model.UniverseFact")
		}
		if err := c.store.UpsertUniverseFact(f); err != nil {
			return nil, err
		}
		return &MutationResponse{Entity: f, Impact: "stored verbatim; no embedding"}, nil

	default:
		return nil, unsupportedKind(string(req.Kind))
	}
}

// mutateDelete runs the one-hop staleness cascade before the row
// delete itself, so relates_to/perceives neighbour lookups still see
// the about-to-be-removed entity's edges. The store enforces
// referential integrity (I7): a rejected delete surfaces as a typed
// ReferentialIntegrity error and the cascade's effects are harmless
// (marking still-valid neighbours stale is not undone, but it was
// already true that their relationship to this entity needed a
// refresh).
func (c *Coordinator) mutateDelete(req MutationRequest) (*MutationResponse, error) {
	if req.EntityID == "" {
		return nil, corerr.Validation("delete requires EntityID")
	}
	if err := c.stale.OnEntityDeleted(req.EntityID); err != nil {
		return nil, err
	}

	var err error
	switch req.Kind {
	case MutationCharacter:
		err = c.store.DeleteCharacter(req.EntityID)
	case MutationLocation:
		err = c.store.DeleteLocation(req.EntityID)
	case MutationEvent:
		err = c.store.DeleteEvent(req.EntityID)
	case MutationScene:
		err = c.store.DeleteScene(req.EntityID)
	case MutationKnowledge:
		err = c.store.DeleteKnowledge(req.EntityID)
	case MutationRelatesTo:
		err = c.store.DeleteRelatesTo(req.EntityID)
	case MutationPerceives:
		err = c.store.DeletePerceives(req.EntityID)
	case MutationKnows:
		err = c.store.DeleteKnows(req.EntityID)
	case MutationUniverse:
		err = c.store.DeleteUniverseFact(req.EntityID)
	default:
		return nil, unsupportedKind(string(req.Kind))
	}
	if err != nil {
		return nil, err
	}
	return &MutationResponse{Impact: "deleted; one-hop neighbours marked stale and annotations removed"}, nil
}
