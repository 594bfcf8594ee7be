// Gatekeeper - Event Registration Check-in Pipeline
// Copyright 2026 Texperia Tech Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/texperia/gatekeeper

package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scanRequest struct {
	Token string `validate:"required"`
}

type registrationQuery struct {
	Email string `validate:"omitempty,email"`
	Limit int    `validate:"min=1,max=100"`
}

func TestValidateStructPasses(t *testing.T) {
	assert.Nil(t, ValidateStruct(&scanRequest{Token: "CS-abc"}))
}

func TestValidateStructRequired(t *testing.T) {
	verr := ValidateStruct(&scanRequest{})
	require.NotNil(t, verr)
	require.Len(t, verr.Errors(), 1)
	assert.Equal(t, "Token", verr.Errors()[0].Field())
	assert.Equal(t, "required", verr.Errors()[0].Tag())
	assert.Contains(t, verr.Error(), "Token is required")
}

func TestValidateStructMultipleFailures(t *testing.T) {
	verr := ValidateStruct(&registrationQuery{Email: "not-an-email", Limit: 0})
	require.NotNil(t, verr)
	assert.Len(t, verr.Errors(), 2)
	assert.Contains(t, verr.Error(), "Email must be a valid email address")
	assert.Contains(t, verr.Error(), "Limit must be at least 1")
}

func TestGetValidatorIsSingleton(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
