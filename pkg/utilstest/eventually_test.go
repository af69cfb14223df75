package utilstest

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventuallySucceeds(t *testing.T) {
	calls := 0
	outcome := Eventually(func() error {
		calls = calls + 1
		if calls < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	}, time.Millisecond, time.Second)
	assert.Nil(t, outcome.Err)
	assert.Equal(t, 3, outcome.Attempts)
}

func TestEventuallyTimesOut(t *testing.T) {
	outcome := Eventually(func() error {
		return fmt.Errorf("never")
	}, 5*time.Millisecond, 30*time.Millisecond)
	assert.EqualError(t, outcome.Err, "never")
	assert.GreaterOrEqual(t, outcome.Attempts, 2)
	assert.GreaterOrEqual(t, outcome.Elapsed, 30*time.Millisecond)
}
