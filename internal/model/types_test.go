package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerdict_String(t *testing.T) {
	tests := []struct {
		verdict  Verdict
		expected string
	}{
		{VerdictFree, "free"},
		{VerdictBusy, "busy"},
		{VerdictInconclusive, "inconclusive"},
		{Verdict(42), "inconclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.verdict.String())
		})
	}
}

// TestVerdict_ZeroValue guards against an unset verdict reading as free.
func TestVerdict_ZeroValue(t *testing.T) {
	var v Verdict
	assert.Equal(t, VerdictInconclusive, v)
}

func TestValidateProjectID(t *testing.T) {
	tests := []struct {
		name     string
		input    ProjectID
		hasError bool
	}{
		{"simple", "demo", false},
		{"with hyphen", "my-shop", false},
		{"with underscore", "my_shop", false},
		{"single char", "a", false},
		{"digits", "2024site", false},
		{"empty", "", true},
		{"leading hyphen", "-demo", true},
		{"trailing underscore", "demo_", true},
		{"path separator", "../etc", true},
		{"space", "my shop", true},
		{"too long", ProjectID(fmt.Sprintf("%064d", 0)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectID(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateRequests(t *testing.T) {
	valid := []ServiceRequest{
		{Name: "WordPress", PreferredPort: 8080},
		{Name: "MySQL", PreferredPort: 3306},
	}
	assert.NoError(t, ValidateRequests(valid))

	assert.Error(t, ValidateRequests(nil), "empty batch")
	assert.Error(t, ValidateRequests([]ServiceRequest{{Name: " ", PreferredPort: 80}}), "blank name")
	assert.Error(t, ValidateRequests([]ServiceRequest{{Name: "web", PreferredPort: 0}}), "port zero")
	assert.Error(t, ValidateRequests([]ServiceRequest{{Name: "web", PreferredPort: 70000}}), "port too high")

	err := ValidateRequests([]ServiceRequest{
		{Name: "web", PreferredPort: 80},
		{Name: "web", PreferredPort: 81},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestServicePortMap_Validate(t *testing.T) {
	ok := ServicePortMap{"WordPress": 8080, "MySQL": 3306}
	assert.NoError(t, ok.Validate())

	dup := ServicePortMap{"WordPress": 8080, "PHPMyAdmin": 8080}
	err := dup.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "8080")

	outOfRange := ServicePortMap{"WordPress": 65536}
	assert.Error(t, outOfRange.Validate())
}

func TestServicePortMap_Helpers(t *testing.T) {
	m := ServicePortMap{"WordPress": 8081, "MySQL": 3306, "PHPMyAdmin": 8082}

	assert.Equal(t, []string{"MySQL", "PHPMyAdmin", "WordPress"}, m.Services())
	assert.Equal(t, []int{3306, 8081, 8082}, m.Ports())

	clone := m.Clone()
	assert.True(t, m.Equal(clone))
	clone["MySQL"] = 3307
	assert.False(t, m.Equal(clone))
	assert.Equal(t, 3306, m["MySQL"], "clone must not alias the original")

	assert.True(t, m.HasServices([]ServiceRequest{
		{Name: "WordPress"}, {Name: "MySQL"}, {Name: "PHPMyAdmin"},
	}))
	assert.False(t, m.HasServices([]ServiceRequest{{Name: "WordPress"}, {Name: "MySQL"}}))
	assert.False(t, m.HasServices([]ServiceRequest{
		{Name: "WordPress"}, {Name: "MySQL"}, {Name: "Redis"},
	}))
}

// TestLedgerEntry_JSONFormat pins the on-disk field names and the
// timestamp layout of a ledger record.
func TestLedgerEntry_JSONFormat(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	used := time.Date(2026, 3, 2, 18, 5, 7, 0, time.Local)

	entry := LedgerEntry{
		ProjectName: "demo",
		CreatedDate: NewTimestamp(created),
		LastUsed:    NewTimestamp(used),
		Ports:       ServicePortMap{"WordPress": 8080},
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "demo", raw["ProjectName"])
	assert.Equal(t, "2026-03-01 09:30:00", raw["CreatedDate"])
	assert.Equal(t, "2026-03-02 18:05:07", raw["LastUsed"])
	assert.Equal(t, map[string]interface{}{"WordPress": float64(8080)}, raw["Ports"])

	var decoded LedgerEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.CreatedDate.Equal(created))
	assert.True(t, decoded.LastUsed.Equal(used))
}

func TestTimestamp_UnmarshalVariants(t *testing.T) {
	var ts Timestamp

	require.NoError(t, json.Unmarshal([]byte(`"2026-01-02T03:04:05Z"`), &ts))
	assert.Equal(t, 2026, ts.Year())

	require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	assert.True(t, ts.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestAllocationError(t *testing.T) {
	var err error = &AllocationError{Service: "WordPress", PreferredPort: 8080, Attempts: 100}
	assert.Contains(t, err.Error(), "WordPress")
	assert.Contains(t, err.Error(), "100 attempts")

	wrapped := fmt.Errorf("allocate demo: %w", err)
	var allocErr *AllocationError
	require.True(t, errors.As(wrapped, &allocErr))
	assert.Equal(t, 8080, allocErr.PreferredPort)
}

func TestCLIError_Error(t *testing.T) {
	err := NewCLIError(ExitProjectNotFound, "project not found")
	assert.Equal(t, "project not found", err.Error())
	assert.Equal(t, ExitProjectNotFound, err.Code)

	inner := errors.New("permission denied")
	wrapped := WrapCLIError(ExitLedgerError, "cannot write ledger", inner)
	assert.Equal(t, "cannot write ledger: permission denied", wrapped.Error())
	assert.ErrorIs(t, wrapped, inner)
}
