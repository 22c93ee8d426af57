package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestUserPatchApplyMergesOnlySuppliedFields(t *testing.T) {
	u := User{ID: "1", FirstName: "Ann", LastName: "Lee", Email: "ann@example.com"}
	email := "new@example.com"
	UserPatch{Email: &email}.Apply(&u)
	if u.FirstName != "Ann" || u.LastName != "Lee" || u.Email != email {
		t.Fatalf("unexpected merge result %+v", u)
	}
	if !(UserPatch{}).Empty() || PatchFrom(u).Empty() {
		t.Fatalf("empty detection is wrong")
	}
}

func TestBatchItemJSON(t *testing.T) {
	var items []BatchItem
	payload := `[
		{"id":"1","first_name":"Ann","email":"a@b.co"},
		{"localKey":"k1","first_name":"Bob"},
		{"tempId":"t1","last_name":"Legacy"},
		{"localKey":"k2","tempId":"ignored"}
	]`
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Identity() != Persisted("1") || *items[0].Email != "a@b.co" || items[0].LastName != nil {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Identity() != Pending("k1") {
		t.Fatalf("unexpected identity %s", items[1].Identity())
	}
	if items[2].Identity() != Pending("t1") || *items[2].LastName != "Legacy" {
		t.Fatalf("tempId alias not honoured: %+v", items[2])
	}
	if items[3].LocalKey != "k2" {
		t.Fatalf("localKey must win over tempId, got %q", items[3].LocalKey)
	}
}

func TestBatchItemFromRoundTrip(t *testing.T) {
	item := BatchItemFrom(User{LocalKey: "k1", FirstName: "Cy", Email: "cy@example.com"})
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back BatchItem
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var u User
	back.Apply(&u)
	if back.Identity() != Pending("k1") || u.FirstName != "Cy" || u.Email != "cy@example.com" {
		t.Fatalf("unexpected round trip %+v", back)
	}
}

func TestErrors(t *testing.T) {
	err := Malformed("expected %s", "array")
	if !errors.Is(err, ErrMalformedInput) {
		t.Fatalf("malformed error must match sentinel")
	}
	if err.Error() != "malformed input: expected array" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if (MalformedInputError{}).Error() != "malformed input" {
		t.Fatalf("unexpected bare message")
	}
	if got := (ErrNotFound{Entity: EntityUser, ID: "1"}).Error(); got != `user "1" not found` {
		t.Fatalf("unexpected message %q", got)
	}
	if got := (ErrAlreadyExists{Entity: EntityUser, ID: "1"}).Error(); got != `user "1" already exists` {
		t.Fatalf("unexpected message %q", got)
	}
}
