package dispatch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentrouter/types"
)

func TestPool_SelectNext_Rotation(t *testing.T) {
	p, err := newPool("credit_card_team", echoWorkers("agent", 3))
	require.NoError(t, err)

	var got []string
	for i := 0; i < 7; i++ {
		w, _ := p.SelectNext()
		got = append(got, w.Name())
	}
	assert.Equal(t, []string{"agent_1", "agent_2", "agent_3", "agent_1", "agent_2", "agent_3", "agent_1"}, got)
	assert.Equal(t, 1, p.Cursor())
	assert.Equal(t, uint64(3), p.Snapshot().Selections["agent_1"])
}

func TestPool_SingleWorker(t *testing.T) {
	p, err := newPool("solo", echoWorkers("only", 1))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		w, cursor := p.SelectNext()
		assert.Equal(t, "only_1", w.Name())
		assert.Equal(t, 0, cursor)
	}
}

func TestNewPool_Validation(t *testing.T) {
	_, err := newPool("empty", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrEmptyPool))

	_, err = newPool("dup", []Worker{newEcho("a"), newEcho("a")})
	assert.True(t, types.IsErrorCode(err, types.ErrDuplicateWorker))
}

// 属性：N 次连续选择恰好覆盖每个 worker 一次（注册顺序），第 N+1 次回到第一个
func TestProperty_RoundRobinFairness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 16).Draw(rt, "poolSize")
		warmup := rapid.IntRange(0, 40).Draw(rt, "warmup")

		workers := echoWorkers("w", n)
		p, err := newPool("p", workers)
		require.NoError(rt, err)

		for i := 0; i < warmup; i++ {
			p.SelectNext()
		}

		start := warmup % n
		for i := 0; i < n; i++ {
			w, _ := p.SelectNext()
			assert.Equal(rt, workers[(start+i)%n].Name(), w.Name())
		}
		w, _ := p.SelectNext()
		assert.Equal(rt, workers[start].Name(), w.Name(), "N+1 次应重复第一个")
	})
}

func TestPool_ConcurrentSelectionDistribution(t *testing.T) {
	for _, tc := range []struct{ n, m int }{{2, 3}, {3, 100}, {5, 1001}, {7, 64}} {
		t.Run(fmt.Sprintf("n=%d,m=%d", tc.n, tc.m), func(t *testing.T) {
			p, err := newPool("p", echoWorkers("w", tc.n))
			require.NoError(t, err)

			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				counts = make(map[string]int)
			)
			for i := 0; i < tc.m; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					w, _ := p.SelectNext()
					mu.Lock()
					counts[w.Name()]++
					mu.Unlock()
				}()
			}
			wg.Wait()

			floor, ceil := tc.m/tc.n, (tc.m+tc.n-1)/tc.n
			total := 0
			for _, name := range p.Workers() {
				c := counts[name]
				assert.GreaterOrEqual(t, c, floor, name)
				assert.LessOrEqual(t, c, ceil, name)
				total += c
			}
			assert.Equal(t, tc.m, total)
			assert.Equal(t, tc.m%tc.n, p.Cursor())
		})
	}
}

func TestPool_AddWorker(t *testing.T) {
	p, err := newPool("p", echoWorkers("w", 2))
	require.NoError(t, err)

	p.SelectNext() // cursor -> 1
	require.NoError(t, p.AddWorker(newEcho("w_3")))
	assert.Equal(t, 1, p.Cursor())

	var got []string
	for i := 0; i < 3; i++ {
		w, _ := p.SelectNext()
		got = append(got, w.Name())
	}
	assert.Equal(t, []string{"w_2", "w_3", "w_1"}, got)

	err = p.AddWorker(newEcho("w_3"))
	assert.True(t, types.IsErrorCode(err, types.ErrDuplicateWorker))
	assert.True(t, types.IsErrorCode(p.AddWorker(nil), types.ErrInvalidInput))
}

func TestPool_RemoveWorker(t *testing.T) {
	t.Run("before cursor keeps next worker", func(t *testing.T) {
		p, _ := newPool("p", echoWorkers("w", 4))
		p.SelectNext()
		p.SelectNext() // next is w_3

		require.NoError(t, p.RemoveWorker("w_1"))
		w, _ := p.SelectNext()
		assert.Equal(t, "w_3", w.Name())
	})

	t.Run("cursor re-normalized when tail removed", func(t *testing.T) {
		p, _ := newPool("p", echoWorkers("w", 3))
		p.SelectNext()
		p.SelectNext() // cursor 2 -> w_3

		require.NoError(t, p.RemoveWorker("w_3"))
		assert.Equal(t, 0, p.Cursor())
		assert.Equal(t, []string{"w_1", "w_2"}, p.Workers())
	})

	t.Run("errors", func(t *testing.T) {
		p, _ := newPool("p", echoWorkers("w", 1))
		assert.True(t, types.IsErrorCode(p.RemoveWorker("nope"), types.ErrUnknownWorker))
		assert.True(t, types.IsErrorCode(p.RemoveWorker("w_1"), types.ErrEmptyPool))
		assert.Equal(t, 1, p.Len())
	})
}

// 属性：任意增删序列后游标始终在 [0, len) 内
func TestProperty_CursorStaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p, err := newPool("p", echoWorkers("seed", rapid.IntRange(1, 4).Draw(rt, "initial")))
		require.NoError(rt, err)

		next := 0
		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				p.SelectNext()
			case 1:
				next++
				require.NoError(rt, p.AddWorker(newEcho(fmt.Sprintf("extra_%d", next))))
			case 2:
				names := p.Workers()
				victim := names[rapid.IntRange(0, len(names)-1).Draw(rt, "victim")]
				err := p.RemoveWorker(victim)
				if len(names) == 1 {
					require.Error(rt, err)
				} else {
					require.NoError(rt, err)
				}
			}
			c := p.Cursor()
			if c < 0 || c >= p.Len() {
				rt.Fatalf("cursor %d out of range for size %d", c, p.Len())
			}
		}
	})
}
