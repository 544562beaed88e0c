package app

import (
	"bytes"
	"encoding/json"
)

// Nullable distinguishes an absent field from an explicit null in a
// partial update. Set is true whenever the key was present.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(data, []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// TaskInput is the body of a create or full replace. Empty status and
// priority take their defaults.
type TaskInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
}

// TaskPatch is the body of a partial update.
type TaskPatch struct {
	Title       Nullable[string] `json:"title"`
	Description Nullable[string] `json:"description"`
	Status      Nullable[string] `json:"status"`
	Priority    Nullable[string] `json:"priority"`
	DueDate     Nullable[string] `json:"due_date"`
}

// ListQuery holds the raw listing filters from the query string.
type ListQuery struct {
	Status   string `query:"status"`
	Priority string `query:"priority"`
	DueDate  string `query:"due_date"`
	Search   string `query:"search"`
}
