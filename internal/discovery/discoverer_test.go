package discovery

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vizard/internal/interfaces"
	"github.com/ternarybob/vizard/internal/models"
)

type fakeEnv struct {
	lane        int
	registered  atomic.Int32
	suites      []models.RegisteredSuite
	tests       []models.RegisteredTest
	registerErr error
	testsErr    error
}

func (f *fakeEnv) Lane() int { return f.lane }

func (f *fakeEnv) Register(ctx context.Context) error {
	f.registered.Add(1)
	return f.registerErr
}

func (f *fakeEnv) Suites(ctx context.Context) ([]models.RegisteredSuite, error) {
	return f.suites, nil
}

func (f *fakeEnv) Tests(ctx context.Context) ([]models.RegisteredTest, error) {
	return f.tests, f.testsErr
}

func (f *fakeEnv) SetViewport(ctx context.Context, width, height int) error { return nil }

func (f *fakeEnv) RunTests(ctx context.Context, tests []models.ScheduledTest) error { return nil }

func (f *fakeEnv) Reset(ctx context.Context) error { return nil }

func TestDiscover_RegistersEveryLane(t *testing.T) {
	primary := &fakeEnv{
		lane:   0,
		suites: []models.RegisteredSuite{{SuiteName: "S"}},
		tests:  []models.RegisteredTest{{SuiteName: "S", TestName: "a"}, {SuiteName: "S", TestName: "b"}},
	}
	secondary := &fakeEnv{lane: 1}

	d := NewDiscoverer(arbor.NewLogger(), models.DefaultOptions(1024, 1080), nil)
	groups, err := d.Discover(context.Background(), []interfaces.TestEnvironment{primary, secondary}, Selection{})

	require.NoError(t, err)
	assert.Equal(t, int32(1), primary.registered.Load())
	assert.Equal(t, int32(1), secondary.registered.Load())
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Tests, 2)
}

func TestDiscover_NoTestsIsNotAnError(t *testing.T) {
	d := NewDiscoverer(arbor.NewLogger(), models.DefaultOptions(1024, 1080), nil)
	groups, err := d.Discover(context.Background(), []interfaces.TestEnvironment{&fakeEnv{}}, Selection{})

	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestDiscover_QueryFailure(t *testing.T) {
	boom := errors.New("page crashed")

	tests := []struct {
		name string
		env  *fakeEnv
		op   string
	}{
		{"register", &fakeEnv{registerErr: boom}, "register"},
		{"tests", &fakeEnv{testsErr: boom}, "tests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDiscoverer(arbor.NewLogger(), models.DefaultOptions(1024, 1080), nil)
			_, err := d.Discover(context.Background(), []interfaces.TestEnvironment{tt.env}, Selection{})

			var discoveryErr *DiscoveryError
			require.ErrorAs(t, err, &discoveryErr)
			assert.Equal(t, tt.op, discoveryErr.Op)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestDiscover_NoEnvironments(t *testing.T) {
	d := NewDiscoverer(arbor.NewLogger(), models.DefaultOptions(1024, 1080), nil)
	_, err := d.Discover(context.Background(), nil, Selection{})

	var discoveryErr *DiscoveryError
	assert.ErrorAs(t, err, &discoveryErr)
}

func TestDiscover_MalformedViewportFailsRun(t *testing.T) {
	env := &fakeEnv{
		suites: []models.RegisteredSuite{{SuiteName: "Nav", SuiteOptions: models.TestOptions{
			models.OptionViewportWidths: []interface{}{float64(320), "wide"},
		}}},
		tests: []models.RegisteredTest{{SuiteName: "Nav", TestName: "collapsed"}},
	}

	d := NewDiscoverer(arbor.NewLogger(), models.DefaultOptions(1024, 1080), nil)
	groups, err := d.Discover(context.Background(), []interfaces.TestEnvironment{env}, Selection{})

	require.Error(t, err)
	assert.Nil(t, groups)
	var discErr *DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, "options", discErr.Op)
	var optsErr *OptionsError
	require.ErrorAs(t, err, &optsErr)
	assert.Equal(t, "Nav", optsErr.SuiteName)
	assert.Equal(t, "collapsed", optsErr.TestName)
}
