// Copyright 2026 The Event Horizon Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"
)

// Domain errors
var (
	ErrInvalidSubject = errors.New("invalid subject")
)

const (
	// DIDPrefix is the scheme every subject identifier starts with
	DIDPrefix = "did:"

	minDIDLength = 5
	maxDIDLength = 255
)

// didPattern allows the method-specific characters of a DID and rejects whitespace or control bytes
var didPattern = regexp.MustCompile(`^did:[A-Za-z0-9._:%\-]+$`)

var hasDIDPrefix = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_did_type", "must be a string")
	}
	if s == "" {
		return nil // Required reports empty values
	}
	if !strings.HasPrefix(s, DIDPrefix) {
		return validation.NewError("validation_did_prefix", `must start with "did:"`)
	}
	return nil
})

// ValidateDID checks that did is a well-formed decentralized identifier.
// Every failure wraps ErrInvalidSubject.
func ValidateDID(did string) error {
	err := validation.Validate(did,
		validation.Required.Error("did is required"),
		validation.Length(minDIDLength, maxDIDLength).Error("did must be between 5 and 255 characters"),
		hasDIDPrefix,
		validation.Match(didPattern).Error("did contains invalid characters"),
	)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSubject, err.Error())
	}
	return nil
}
