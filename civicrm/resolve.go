package civicrm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/openfield/canvass/model"
)

// ContactRef is the identifier shape, decided once at the system
// boundary instead of re-checked at every call site. A digit-only
// identifier is taken as the CRM's own numeric id; anything else is an
// opaque local id that needs a lookup.
type ContactRef struct {
	raw      string
	external int
	numeric  bool
}

func ParseContactRef(raw string) ContactRef {
	if n, err := strconv.Atoi(raw); err == nil && raw != "" && raw[0] != '-' && raw[0] != '+' {
		return ContactRef{raw: raw, external: n, numeric: true}
	}
	return ContactRef{raw: raw}
}

func (r ContactRef) String() string { return r.raw }

// Numeric reports whether the reference already carries the CRM id.
func (r ContactRef) Numeric() bool { return r.numeric }

// ResolveContact maps a contact reference to a durable CRM contact id.
// Resolution order, first match wins:
//
//  1. numeric reference: the id is used as-is, no network call —
//     creating here would duplicate a contact the CRM already owns;
//  2. email hint: search by email, create an Individual on miss —
//     create is safe only because the respondent supplied the email;
//  3. lookup by the external_identifier custom attribute;
//  4. ErrContactNotResolvable.
func (c *Client) ResolveContact(ctx context.Context, ref ContactRef, hint *model.ContactHint) (int, error) {
	if ref.Numeric() {
		return ref.external, nil
	}

	if hint != nil && hint.Email != "" {
		id, found, err := c.FindContactByEmail(ctx, hint.Email)
		if err != nil {
			return 0, fmt.Errorf("resolve by email: %w", err)
		}
		if found {
			return id, nil
		}
		id, err = c.CreateContact(ctx, *hint)
		if err != nil {
			return 0, fmt.Errorf("create contact: %w", err)
		}
		return id, nil
	}

	id, found, err := c.FindContactByExternalID(ctx, ref.raw)
	if err != nil {
		return 0, fmt.Errorf("resolve by external identifier: %w", err)
	}
	if found {
		return id, nil
	}

	return 0, fmt.Errorf("%w: %q is not numeric, no email provided, and no external_identifier match", ErrContactNotResolvable, ref.raw)
}

// ContactHintFromAnswers extracts the respondent-confirmed contact
// fields from a contact-verification answer, nil when the survey had
// none or the value does not parse.
func ContactHintFromAnswers(answers []model.Answer) *model.ContactHint {
	for _, a := range answers {
		if a.QuestionType != model.ContactVerification {
			continue
		}
		hint := model.ContactHint{}
		if err := json.Unmarshal([]byte(a.Value), &hint); err != nil {
			return nil
		}
		if hint == (model.ContactHint{}) {
			return nil
		}
		return &hint
	}
	return nil
}
