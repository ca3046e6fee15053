package temporal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/efebarandurmaz/logsift/internal/commit"
	"github.com/efebarandurmaz/logsift/internal/metrics"
	"github.com/efebarandurmaz/logsift/internal/pipeline"
)

type fakeRebuilder struct {
	paths    []string
	reindex  int
	err      error
	verified pipeline.Verification
}

func (f *fakeRebuilder) Run(_ context.Context, paths []string) (*metrics.RebuildReport, error) {
	f.paths = paths
	if f.err != nil {
		return nil, f.err
	}
	r := metrics.New("ingest")
	for _, p := range paths {
		r.AddDocument(metrics.DocumentStats{Path: p, Commits: 2, Added: 2, Units: 3})
	}
	r.Points = 3 * len(paths)
	r.Repositories = len(paths)
	r.Finish(nil)
	return r, nil
}

func (f *fakeRebuilder) Reindex(context.Context) (*metrics.RebuildReport, error) {
	f.reindex++
	r := metrics.New("reindex")
	r.Points = 7
	r.Finish(nil)
	return r, f.err
}

func (f *fakeRebuilder) Verify(context.Context) (pipeline.Verification, error) {
	return f.verified, f.err
}

type fakeRecorder struct {
	modes []string
	errs  int
}

func (r *fakeRecorder) RecordRebuild(mode string, _ *metrics.RebuildReport, err error) {
	r.modes = append(r.modes, mode)
	if err != nil {
		r.errs++
	}
}

func TestSetDependencies(t *testing.T) {
	d := &Dependencies{Pipeline: &fakeRebuilder{}, Extension: ".xml"}
	SetDependencies(d)
	if deps != d {
		t.Fatal("SetDependencies did not set dependencies")
	}
}

func TestRebuildActivity_Dir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.xml", "a.xml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("<commits/>"), 0o644))
	}
	fake := &fakeRebuilder{}
	rec := &fakeRecorder{}
	SetDependencies(&Dependencies{Pipeline: fake, Extension: ".xml", Metrics: rec})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(RebuildActivity)

	val, err := env.ExecuteActivity(RebuildActivity, RebuildInput{Paths: []string{"/data/extra.xml"}, Dir: dir})
	require.NoError(t, err)

	var out RebuildOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, []string{"/data/extra.xml", filepath.Join(dir, "a.xml"), filepath.Join(dir, "b.xml")}, fake.paths)
	assert.Equal(t, "ingest", out.Mode)
	assert.Equal(t, 3, out.Documents)
	assert.Equal(t, 6, out.Commits)
	assert.Equal(t, 9, out.Points)
	assert.Equal(t, []string{"ingest"}, rec.modes)
}

func TestRebuildActivity_NoDocuments(t *testing.T) {
	SetDependencies(&Dependencies{Pipeline: &fakeRebuilder{}, Extension: ".xml"})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(RebuildActivity)

	_, err := env.ExecuteActivity(RebuildActivity, RebuildInput{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestRebuildActivity_PipelineError(t *testing.T) {
	rec := &fakeRecorder{}
	SetDependencies(&Dependencies{Pipeline: &fakeRebuilder{err: errors.New("model not found")}, Metrics: rec})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(RebuildActivity)

	_, err := env.ExecuteActivity(RebuildActivity, RebuildInput{Paths: []string{"a.xml"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
	assert.Equal(t, 1, rec.errs)
}

func TestReindexAndVerifyActivities(t *testing.T) {
	fake := &fakeRebuilder{verified: pipeline.Verification{
		Commits: 2,
		Points:  1,
		Missing: []commit.Key{{RepositoryURL: "u", Hash: "h"}},
	}}
	SetDependencies(&Dependencies{Pipeline: fake})

	var s testsuite.WorkflowTestSuite
	env := s.NewTestActivityEnvironment()
	env.RegisterActivity(ReindexActivity)
	env.RegisterActivity(VerifyActivity)

	val, err := env.ExecuteActivity(ReindexActivity)
	require.NoError(t, err)
	var out RebuildOutput
	require.NoError(t, val.Get(&out))
	assert.Equal(t, "reindex", out.Mode)
	assert.Equal(t, 7, out.Points)
	assert.Equal(t, 1, fake.reindex)

	val, err = env.ExecuteActivity(VerifyActivity)
	require.NoError(t, err)
	var v VerifyResult
	require.NoError(t, val.Get(&v))
	assert.False(t, v.OK)
	assert.Equal(t, 1, v.Missing)
}

func TestOutputFrom(t *testing.T) {
	r := metrics.New("ingest")
	r.AddDocument(metrics.DocumentStats{Commits: 4})
	r.Repositories = 1
	r.Points = 4
	r.Duration = time.Second
	out := outputFrom(r)
	assert.Equal(t, RebuildOutput{Mode: "ingest", Documents: 1, Commits: 4, Repositories: 1, Points: 4, Duration: time.Second}, out)
}
