// Package app_test contains unit tests for the app package.
package app_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagemark/internal/app"
	"github.com/JakeFAU/pagemark/internal/config"
	"github.com/JakeFAU/pagemark/internal/extract"
	"github.com/JakeFAU/pagemark/internal/logging"
	"github.com/JakeFAU/pagemark/internal/render"
	"github.com/JakeFAU/pagemark/internal/storage/local"
)

// MockRenderer mocks the extract.Renderer interface.
type MockRenderer struct {
	mock.Mock
}

// Render satisfies the extract.Renderer interface for the mock.
func (m *MockRenderer) Render(ctx context.Context, rawURL string, timeout time.Duration) (string, error) {
	args := m.Called(ctx, rawURL, timeout)
	return args.String(0), args.Error(1)
}

type instantSleeper struct{}

func (instantSleeper) Sleep(context.Context, time.Duration) error { return nil }

type fixedID struct{}

func (fixedID) NewID() (string, error) { return "run-test", nil }

func testConfig(targets ...extract.WorkItem) config.Config {
	return config.Config{
		Output:   local.Config{Root: "/out", Extension: "md"},
		Pipeline: config.PipelineConfig{MaxRetries: 3, BackoffBase: time.Second, Concurrency: 2},
		Render:   config.RenderConfig{Timeout: 5 * time.Second, Config: render.DefaultConfig()},
		Targets:  targets,
		Logging:  logging.Config{Level: "info"},
		Summary:  config.SummaryConfig{Format: "json"},
	}
}

func TestRunAllSucceed(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	r := new(MockRenderer)
	r.On("Render", mock.Anything, "https://a.example/", 5*time.Second).
		Return("<html><body><main><h1>A</h1></main></body></html>", nil).Once()
	r.On("Render", mock.Anything, "https://b.example/", 5*time.Second).
		Return("<html><body><article><p>B</p></article></body></html>", nil).Once()

	var out bytes.Buffer
	cfg := testConfig(
		extract.WorkItem{URL: "https://a.example/", Label: "a"},
		extract.WorkItem{URL: "https://b.example/", Label: "b"},
	)
	cfg.Summary.File = "/out/summary.json"

	a := app.New(cfg, nil,
		app.WithFs(fs),
		app.WithRenderer(r),
		app.WithSleeper(instantSleeper{}),
		app.WithIDGenerator(fixedID{}),
		app.WithOutput(&out),
	)
	rep, err := a.Run(context.Background())
	require.NoError(t, err)
	r.AssertExpectations(t)

	assert.Equal(t, "run-test", rep.RunID)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Contains(t, out.String(), "Success: 2/2")
	assert.Contains(t, out.String(), "Failed: 0/2")

	data, err := afero.ReadFile(fs, "/out/a.md")
	require.NoError(t, err)
	assert.Equal(t, "# A", string(data))

	summary, err := afero.ReadFile(fs, "/out/summary.json")
	require.NoError(t, err)
	assert.Contains(t, string(summary), `"run_id": "run-test"`)
}

func TestRunReportsFailure(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	r := new(MockRenderer)
	r.On("Render", mock.Anything, "https://a.example/", mock.Anything).
		Return("", extract.FetchError(errors.New("net::ERR_NAME_NOT_RESOLVED"))).Times(3)

	var out bytes.Buffer
	a := app.New(testConfig(extract.WorkItem{URL: "https://a.example/", Label: "a"}), nil,
		app.WithFs(fs),
		app.WithRenderer(r),
		app.WithSleeper(instantSleeper{}),
		app.WithOutput(&out),
	)
	rep, err := a.Run(context.Background())
	require.ErrorIs(t, err, app.ErrRunFailed)
	require.NotNil(t, rep)
	r.AssertExpectations(t)

	assert.Equal(t, 1, rep.Failed)
	assert.Contains(t, out.String(), "Failed: 1/1")
	exists, err := afero.Exists(fs, "/out/a.md")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRunRejectsInvalidTargetWithoutRendering(t *testing.T) {
	t.Parallel()

	r := new(MockRenderer)
	a := app.New(testConfig(extract.WorkItem{URL: "https://a.example/", Label: "../up"}), nil,
		app.WithFs(afero.NewMemMapFs()),
		app.WithRenderer(r),
		app.WithOutput(&bytes.Buffer{}),
	)
	rep, err := a.Run(context.Background())
	require.ErrorIs(t, err, app.ErrRunFailed)
	assert.Equal(t, extract.StateRejected, rep.Results[0].State)
	r.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOutputNotWritable(t *testing.T) {
	t.Parallel()

	a := app.New(testConfig(extract.WorkItem{URL: "https://a.example/", Label: "a"}), nil,
		app.WithFs(afero.NewReadOnlyFs(afero.NewMemMapFs())),
		app.WithRenderer(new(MockRenderer)),
		app.WithOutput(&bytes.Buffer{}),
	)
	rep, err := a.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.Equal(t, extract.KindIO, extract.KindOf(err))
}

func TestRunServesMetricsDuringRun(t *testing.T) {
	t.Parallel()

	r := new(MockRenderer)
	r.On("Render", mock.Anything, mock.Anything, mock.Anything).Return("<main>x</main>", nil)

	cfg := testConfig(extract.WorkItem{URL: "https://a.example/", Label: "a"})
	cfg.Metrics.Addr = "127.0.0.1:0"
	a := app.New(cfg, nil,
		app.WithFs(afero.NewMemMapFs()),
		app.WithRenderer(r),
		app.WithOutput(&bytes.Buffer{}),
	)
	_, err := a.Run(context.Background())
	assert.NoError(t, err)
}
