package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	Product  string `json:"product" validate:"required,uuid"`
	Size     string `json:"size" validate:"size"`
	Quantity int    `json:"quantity" validate:"min=1"`
}

type testRequest struct {
	Name     string     `json:"name" validate:"required,min=2,max=50"`
	Email    string     `json:"email" validate:"required,email"`
	Phone    string     `json:"phone" validate:"omitempty,phone"`
	Password string     `json:"password" validate:"password"`
	Category string     `json:"category" validate:"category"`
	Items    []testItem `json:"items" validate:"min=1,dive"`
}

func validRequest() testRequest {
	return testRequest{
		Name:     "Ann",
		Email:    "ann@example.com",
		Phone:    "+1 555-123-4567",
		Password: "Secret1",
		Category: "men-shirts",
		Items:    []testItem{{Product: "7b0b3a52-4d7e-4b53-9c55-4f1c0f0c2a11", Size: "M", Quantity: 1}},
	}
}

func TestStruct_Valid(t *testing.T) {
	assert.NoError(t, Struct(validRequest()))
}

func TestStruct_CollectsFieldErrors(t *testing.T) {
	req := validRequest()
	req.Name = "A"
	req.Email = "nope"
	req.Password = "weak"
	req.Category = "hats"
	req.Items[0].Quantity = 0
	req.Items[0].Size = "XXXL"

	err := Struct(req)
	require.Error(t, err)

	var errs Errors
	require.ErrorAs(t, err, &errs)

	fields := map[string]string{}
	for _, fe := range errs {
		fields[fe.Field] = fe.Message
	}
	assert.Equal(t, "must be at least 2 characters", fields["name"])
	assert.Equal(t, "must be a valid email", fields["email"])
	assert.Contains(t, fields, "password")
	assert.Equal(t, "is not a known category", fields["category"])
	assert.Equal(t, "must be at least 1", fields["items[0].quantity"])
	assert.Equal(t, "is not a known size", fields["items[0].size"])
	assert.Contains(t, err.Error(), "validation failed")
}

func TestStruct_EmptyItems(t *testing.T) {
	req := validRequest()
	req.Items = nil

	var errs Errors
	require.ErrorAs(t, Struct(req), &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, "items", errs[0].Field)
	assert.Equal(t, "must contain at least 1 item(s)", errs[0].Message)
}

func TestIsStrongPassword(t *testing.T) {
	assert.True(t, IsStrongPassword("Passw0rd"))
	assert.False(t, IsStrongPassword("Pa1"))
	assert.False(t, IsStrongPassword("password1"))
	assert.False(t, IsStrongPassword("PASSWORD1"))
	assert.False(t, IsStrongPassword("Password"))
}

func TestIsValidOrderNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{name: "generated", number: "ORD-1700000000000-0001", valid: true},
		{name: "long sequence", number: "ORD-1700000000000-12345", valid: true},
		{name: "short sequence", number: "ORD-1700000000000-12", valid: false},
		{name: "missing prefix", number: "1700000000000-0001", valid: false},
		{name: "letters", number: "ORD-17000a0000000-0001", valid: false},
		{name: "empty", number: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidOrderNumber(tt.number))
		})
	}
}
