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

package http

import (
	"context"
	"time"
)

type contextKey string

const (
	subjectIDKey   contextKey = "subject_id"
	tokenIDKey     contextKey = "token_id"
	tokenExpiryKey contextKey = "token_expiry"
)

// GetSubjectID retrieves the authenticated subject DID from context.
func GetSubjectID(ctx context.Context) string {
	if val, ok := ctx.Value(subjectIDKey).(string); ok {
		return val
	}
	return ""
}

// GetTokenID retrieves the jti of the bearer token from context.
func GetTokenID(ctx context.Context) string {
	if val, ok := ctx.Value(tokenIDKey).(string); ok {
		return val
	}
	return ""
}

// GetTokenExpiry retrieves the expiry of the bearer token from context.
func GetTokenExpiry(ctx context.Context) time.Time {
	if val, ok := ctx.Value(tokenExpiryKey).(time.Time); ok {
		return val
	}
	return time.Time{}
}
