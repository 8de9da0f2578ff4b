package op

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind identifies the category of an operation. The well-known CRUD kinds
// are provided as constants, but any non-empty identifier is permitted;
// semantics beyond uniqueness are caller-defined.
type Kind string

const (
	KindCreate Kind = "Create"
	KindUpdate Kind = "Update"
	KindDelete Kind = "Delete"
)

// Operation is the identity tuple of a single caller operation.
//
// Kind and RecordID are treated as opaque identifiers. Nonce is the
// caller-chosen uniqueness axis (typically a timestamp); two operations that
// differ only in nonce are distinct.
type Operation struct {
	Kind     Kind   `json:"kind" validate:"required"`
	RecordID string `json:"record_id" validate:"required"`
	Nonce    int64  `json:"nonce" validate:"gte=0"`
}

var validate = validator.New()

// NewOperation builds a validated Operation.
//
// Empty kinds or record IDs and negative nonces are rejected here, at the
// boundary, so they can never reach the fingerprint codec.
func NewOperation(kind Kind, recordID string, nonce int64) (Operation, error) {
	o := Operation{Kind: kind, RecordID: recordID, Nonce: nonce}
	if err := o.Validate(); err != nil {
		return Operation{}, err
	}
	return o, nil
}

// Validate checks the operation's structural constraints.
func (o Operation) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid operation %s/%s: %w", o.Kind, o.RecordID, err)
	}
	return nil
}

// String renders the tuple for logs and error messages.
func (o Operation) String() string {
	return fmt.Sprintf("%s:%s:%d", o.Kind, o.RecordID, o.Nonce)
}
