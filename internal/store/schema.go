package store

// schema defines every table of the narrative document-graph store.
// Vector-bearing columns are BLOB (raw little-endian float32, the
// layout sqlite-vec's vec_distance_cosine expects) so brute-force
// cosine scans can run entirely in SQL without a vec0 index — per
// design, embedded mode deliberately avoids ANN indexes.
const schema = `
CREATE TABLE IF NOT EXISTS world_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    embedding_provider TEXT,
    embedding_model TEXT,
    embedding_dims INTEGER
);

CREATE TABLE IF NOT EXISTS characters (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    aliases TEXT,
    roles TEXT,
    profile TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1,
    identity_embedding BLOB,
    psychology_embedding BLOB,
    social_embedding BLOB,
    narrative_embedding BLOB
);
CREATE INDEX IF NOT EXISTS idx_characters_stale ON characters(embedding_stale);

CREATE TABLE IF NOT EXISTS locations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    loc_type TEXT,
    parent_id TEXT,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_locations_parent ON locations(parent_id);

CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    sequence INTEGER NOT NULL,
    date TEXT,
    date_precision TEXT,
    duration_end TEXT,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_events_sequence ON events(sequence);

CREATE TABLE IF NOT EXISTS scenes (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    summary TEXT,
    event_id TEXT,
    primary_location_id TEXT,
    secondary_locations TEXT,
    participants TEXT,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_scenes_event ON scenes(event_id);

CREATE TABLE IF NOT EXISTS knowledge (
    id TEXT PRIMARY KEY,
    character_id TEXT NOT NULL,
    fact TEXT NOT NULL,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_knowledge_character ON knowledge(character_id);

CREATE TABLE IF NOT EXISTS relates_to (
    id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    rel_type TEXT NOT NULL,
    subtype TEXT,
    label TEXT,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_relates_to_unique ON relates_to(from_id, to_id, rel_type);
CREATE INDEX IF NOT EXISTS idx_relates_to_from ON relates_to(from_id);
CREATE INDEX IF NOT EXISTS idx_relates_to_to ON relates_to(to_id);

CREATE TABLE IF NOT EXISTS perceives (
    id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    rel_types TEXT,
    subtype TEXT,
    feelings TEXT,
    perception TEXT,
    tension_level INTEGER NOT NULL DEFAULT 0,
    history_notes TEXT,
    embedding BLOB,
    composite_text TEXT,
    embedding_stale INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_perceives_unique ON perceives(from_id, to_id);
CREATE INDEX IF NOT EXISTS idx_perceives_from ON perceives(from_id);
CREATE INDEX IF NOT EXISTS idx_perceives_to ON perceives(to_id);

CREATE TABLE IF NOT EXISTS knows (
    id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    target_id TEXT NOT NULL,
    certainty TEXT NOT NULL,
    learning_method TEXT,
    source_character TEXT,
    event_id TEXT,
    premises TEXT,
    truth_value TEXT,
    learned_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_knows_from ON knows(from_id);
CREATE INDEX IF NOT EXISTS idx_knows_target ON knows(target_id);
CREATE INDEX IF NOT EXISTS idx_knows_learned ON knows(target_id, learned_at);

CREATE TABLE IF NOT EXISTS arc_snapshot (
    id TEXT PRIMARY KEY,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    embedding BLOB NOT NULL,
    delta_magnitude REAL,
    event_id TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_arc_snapshot_entity ON arc_snapshot(entity_id, created_at);

CREATE TABLE IF NOT EXISTS annotation (
    entity_id TEXT NOT NULL,
    model_type TEXT NOT NULL,
    model_version TEXT NOT NULL,
    output BLOB NOT NULL,
    computed_at INTEGER NOT NULL,
    stale INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (entity_id, model_type)
);

CREATE TABLE IF NOT EXISTS universe_fact (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT,
    categories TEXT,
    enforcement_level TEXT NOT NULL DEFAULT 'informational',
    scope TEXT
);

CREATE TABLE IF NOT EXISTS phase (
    id TEXT PRIMARY KEY,
    phase_index INTEGER NOT NULL,
    label TEXT,
    entity_ids TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
`
