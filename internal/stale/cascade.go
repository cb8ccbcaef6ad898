package stale

import (
	"github.com/florinutz/narra-core/internal/model"
)

// OnCharacterFieldsChanged implements the cascade rule for an update
// to a character's name or roles: every relates_to edge touching it
// is marked stale (their composite embeds those fields), and the
// character itself is marked stale and scheduled for regeneration.
func (m *Manager) OnCharacterFieldsChanged(characterID string) error {
	if err := m.MarkStale(characterID); err != nil {
		return err
	}
	edgeIDs, err := m.store.RelatesToIDsForCharacter(characterID)
	if err != nil {
		return err
	}
	for _, id := range edgeIDs {
		if err := m.store.SetEmbeddingStale(model.KindRelatesTo, id, true); err != nil {
			return err
		}
		m.SpawnRegeneration(id, "")
	}
	m.SpawnRegeneration(characterID, "")
	return nil
}

// OnRelatesToChanged implements the cascade rule for a relates_to
// create/update: both endpoint characters are marked stale, and every
// perceives edge between the same pair is marked stale.
func (m *Manager) OnRelatesToChanged(r *model.RelatesTo) error {
	if err := m.store.SetEmbeddingStale(model.KindCharacter, r.FromID, true); err != nil {
		return err
	}
	if err := m.store.SetEmbeddingStale(model.KindCharacter, r.ToID, true); err != nil {
		return err
	}
	m.SpawnRegeneration(r.FromID, "")
	m.SpawnRegeneration(r.ToID, "")

	perceivesIDs, err := m.store.PerceivesIDsBetweenPair(r.FromID, r.ToID)
	if err != nil {
		return err
	}
	for _, id := range perceivesIDs {
		if err := m.store.SetEmbeddingStale(model.KindPerceives, id, true); err != nil {
			return err
		}
		m.SpawnRegeneration(id, "")
	}
	return nil
}

// OnPerceivesChanged implements the cascade rule for a perceives
// update: mark that edge stale and regenerate it.
func (m *Manager) OnPerceivesChanged(perceivesID string) error {
	if err := m.MarkStale(perceivesID); err != nil {
		return err
	}
	m.SpawnRegeneration(perceivesID, "")
	return nil
}

// OnEntityDeleted implements the cascade rule for any entity delete:
// mark one-hop related entities stale, then delete the entity's
// annotations. Deletion of the entity row itself is the caller's
// responsibility (it owns referential-integrity checks).
func (m *Manager) OnEntityDeleted(entityID string) error {
	if err := m.MarkRelatedStale(entityID); err != nil {
		return err
	}
	return m.store.DeleteAnnotationsForEntity(entityID)
}
