package types

import "time"

// Entity is a cluster of fragments attributed to one subject. FragmentCount
// always equals the number of stored fragment rows referencing the entity.
type Entity struct {
	EntityID      string    `json:"entity_id"`
	FragmentCount int       `json:"fragment_count"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EntityRecord is an entity together with its live fragments.
type EntityRecord struct {
	Entity    Entity           `json:"entity"`
	Fragments []StoredFragment `json:"fragments"`
}

// Erasure is an immutable record of one erasure event, either an explicit
// entity erasure or the removal of an entity's last fragment.
type Erasure struct {
	ErasureID        string    `json:"erasure_id"`
	EntityID         string    `json:"entity_id"`
	FragmentsDeleted int       `json:"fragments_deleted"`
	RequestedBy      string    `json:"requested_by"`
	Reason           string    `json:"reason"`
	Timestamp        time.Time `json:"timestamp"`
}

// Statistics is computed fresh from current row counts.
type Statistics struct {
	TotalEntities         int     `json:"total_entities"`
	TotalFragments        int     `json:"total_fragments"`
	AvgFragmentsPerEntity float64 `json:"avg_fragments_per_entity"`
	ErasuresPerformed     int     `json:"erasures_performed"`
}

// DeleteResult describes the effect of removing a single fragment.
type DeleteResult struct {
	EntityID     string `json:"entity_id"`
	Remaining    int    `json:"remaining"`
	EntityErased bool   `json:"entity_erased"`
	ErasureID    string `json:"erasure_id,omitempty"`
}
