package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/devstack/internal/model"
)

func TestFormatPorts(t *testing.T) {
	tests := []struct {
		name  string
		ports model.ServicePortMap
		want  string
	}{
		{name: "nil map returns dash", ports: nil, want: "-"},
		{name: "empty map returns dash", ports: model.ServicePortMap{}, want: "-"},
		{name: "single service", ports: model.ServicePortMap{"WordPress": 8080}, want: "WordPress=8080"},
		{
			name:  "sorted by service name",
			ports: model.ServicePortMap{"WordPress": 8081, "MySQL": 3306, "PHPMyAdmin": 8082},
			want:  "MySQL=3306, PHPMyAdmin=8082, WordPress=8081",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPorts(tt.ports))
		})
	}
}

func TestFormatVerdict(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	assert.Equal(t, "free", FormatVerdict(model.VerdictFree))
	assert.Equal(t, "busy", FormatVerdict(model.VerdictBusy))
	assert.Equal(t, "inconclusive", FormatVerdict(model.VerdictInconclusive))
}

func TestParseServiceFlags(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    []model.ServiceRequest
		wantErr bool
	}{
		{
			name:   "keeps flag order",
			values: []string{"WordPress=8080", "MySQL=3306"},
			want: []model.ServiceRequest{
				{Name: "WordPress", PreferredPort: 8080},
				{Name: "MySQL", PreferredPort: 3306},
			},
		},
		{
			name:   "trims spaces",
			values: []string{" Mailpit = 8025 "},
			want:   []model.ServiceRequest{{Name: "Mailpit", PreferredPort: 8025}},
		},
		{name: "missing separator", values: []string{"WordPress"}, wantErr: true},
		{name: "missing name", values: []string{"=8080"}, wantErr: true},
		{name: "non-numeric port", values: []string{"WordPress=http"}, wantErr: true},
		{name: "port out of range", values: []string{"WordPress=70000"}, wantErr: true},
		{name: "duplicate service", values: []string{"web=80", "web=81"}, wantErr: true},
		{name: "no services", values: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseServiceFlags(tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestServiceURLs(t *testing.T) {
	urls := ServiceURLs(model.ServicePortMap{"WordPress": 8081, "MySQL": 3306, "PHPMyAdmin": 8082})
	assert.Equal(t, [][2]string{
		{"WordPress", "http://localhost:8081"},
		{"PHPMyAdmin", "http://localhost:8082"},
	}, urls)

	assert.Empty(t, ServiceURLs(model.ServicePortMap{"MySQL": 3306}))
}

func TestFormatProjects(t *testing.T) {
	assert.Equal(t, "blog, shop", FormatProjects([]model.ProjectID{"blog", "shop"}))
	assert.Equal(t, "", FormatProjects(nil))
}

func TestToCLIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ExitCode
	}{
		{
			name: "CLIError keeps its code",
			err:  model.NewCLIError(model.ExitProjectNotFound, "missing"),
			want: model.ExitProjectNotFound,
		},
		{
			name: "wrapped CLIError",
			err:  fmt.Errorf("outer: %w", model.NewCLIError(model.ExitConfigError, "bad")),
			want: model.ExitConfigError,
		},
		{
			name: "exhausted search",
			err:  &model.AllocationError{Service: "WordPress", PreferredPort: 8080, Attempts: 100},
			want: model.ExitPortAllocationFailed,
		},
		{
			name: "interrupted",
			err:  fmt.Errorf("probe: %w", context.Canceled),
			want: model.ExitUserCancelled,
		},
		{
			name: "anything else",
			err:  errors.New("boom"),
			want: model.ExitGeneralError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toCLIError(tt.err).Code)
		})
	}
}
