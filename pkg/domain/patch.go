package domain

import (
	"encoding/json"
)

// UserPatch carries the fields supplied by a write. Nil fields are left unchanged
// when merged into an existing record.
type UserPatch struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Position  *string `json:"position,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// PatchFrom builds a patch that sets every editable field of u.
func PatchFrom(u User) UserPatch {
	return UserPatch{
		FirstName: ptr(u.FirstName),
		LastName:  ptr(u.LastName),
		Position:  ptr(u.Position),
		Phone:     ptr(u.Phone),
		Email:     ptr(u.Email),
	}
}

// Apply merges the supplied fields into u.
func (p UserPatch) Apply(u *User) {
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Position != nil {
		u.Position = *p.Position
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
}

// Empty reports whether the patch sets no field.
func (p UserPatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Position == nil && p.Phone == nil && p.Email == nil
}

func ptr(s string) *string { return &s }

// BatchItem is one record of a bulk upsert request.
type BatchItem struct {
	ID       string `json:"id,omitempty"`
	LocalKey string `json:"localKey,omitempty"`
	UserPatch
}

// BatchItemFrom converts a grid row into a bulk upsert item.
func BatchItemFrom(u User) BatchItem {
	return BatchItem{ID: u.ID, LocalKey: u.LocalKey, UserPatch: PatchFrom(u)}
}

// Identity resolves the item's write identity.
func (b BatchItem) Identity() Identity {
	return resolveIdentity(b.ID, b.LocalKey)
}

// UnmarshalJSON accepts the legacy "tempId" key as an alias of "localKey".
func (b *BatchItem) UnmarshalJSON(data []byte) error {
	type plain BatchItem
	var aux struct {
		plain
		TempID string `json:"tempId,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*b = BatchItem(aux.plain)
	if b.LocalKey == "" {
		b.LocalKey = aux.TempID
	}
	return nil
}
