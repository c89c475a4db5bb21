package murmur

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestId(t *testing.T) {
	id := NewId()
	assert.NotEqual(t, Id{}, id)

	parsed, err := ParseId(id.String())
	assert.Equal(t, nil, err)
	assert.Equal(t, id, parsed)

	fromBytes, err := IdFromBytes(id[:])
	assert.Equal(t, nil, err)
	assert.Equal(t, id, fromBytes)

	_, err = IdFromBytes([]byte{1, 2, 3})
	assert.NotEqual(t, nil, err)

	_, err = ParseId("not an id")
	assert.NotEqual(t, nil, err)
}

func TestCallbackList(t *testing.T) {
	callbackList := NewCallbackList[func(int)]()

	values := []int{}
	removeA := callbackList.Add(func(v int) {
		values = append(values, v)
	})
	removeB := callbackList.Add(func(v int) {
		values = append(values, v*10)
	})

	for _, callback := range callbackList.Get() {
		callback(1)
	}
	assert.Equal(t, []int{1, 10}, values)

	removeA()
	values = []int{}
	for _, callback := range callbackList.Get() {
		callback(2)
	}
	assert.Equal(t, []int{20}, values)

	// removing twice is a no-op
	removeA()
	removeB()
	assert.Equal(t, 0, len(callbackList.Get()))
}

func TestMonitor(t *testing.T) {
	monitor := NewMonitor()

	notify := monitor.NotifyChannel()
	select {
	case <-notify:
		t.Fatal("should not notify yet")
	default:
	}

	monitor.NotifyAll()
	select {
	case <-notify:
	default:
		t.Fatal("should have notified")
	}

	// the replaced channel waits for the next notify
	nextNotify := monitor.NotifyChannel()
	select {
	case <-nextNotify:
		t.Fatal("should not notify yet")
	default:
	}
}

func TestReconnect(t *testing.T) {
	reconnect := NewReconnect(10 * time.Millisecond)

	startTime := time.Now()
	<-reconnect.After()
	elapsed := time.Since(startTime)
	assert.Equal(t, true, elapsed < time.Second)

	// an expired reconnect fires immediately
	reconnect = NewReconnect(time.Nanosecond)
	time.Sleep(time.Millisecond)
	select {
	case <-reconnect.After():
	case <-time.After(time.Second):
		t.Fatal("expired reconnect should fire immediately")
	}
}
