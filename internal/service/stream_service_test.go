package service_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastmem/fastmem/internal/model"
	"github.com/fastmem/fastmem/internal/service"
)

func TestFeed_DeliversInPublishOrder(t *testing.T) {
	feed := service.NewFeedService(nil)

	sub := feed.Subscribe(16)
	defer sub.Close()

	for i := 1; i <= 5; i++ {
		feed.Publish(service.ChangeEvent{
			Key:        "k",
			Kind:       model.OpSet,
			NewVersion: uint64(i),
		})
	}

	for i := 1; i <= 5; i++ {
		ev := recvEvent(t, sub.C)
		assert.Equal(t, uint64(i), ev.NewVersion)
	}
}

func TestFeed_MultipleSubscribersEachGetEverything(t *testing.T) {
	feed := service.NewFeedService(nil)

	a := feed.Subscribe(16)
	defer a.Close()
	b := feed.Subscribe(16)
	defer b.Close()

	require.Equal(t, 2, feed.Subscribers())

	feed.Publish(service.ChangeEvent{Key: "k", Kind: model.OpSet, NewVersion: 1})

	assert.Equal(t, "k", recvEvent(t, a.C).Key)
	assert.Equal(t, "k", recvEvent(t, b.C).Key)
}

func TestFeed_CloseDeregistersAndClosesChannel(t *testing.T) {
	feed := service.NewFeedService(nil)

	sub := feed.Subscribe(4)
	sub.Close()
	sub.Close()

	// The drain goroutine removes the subscription once it observes done.
	require.Eventually(t, func() bool {
		return feed.Subscribers() == 0
	}, time.Second, 5*time.Millisecond)

	_, open := <-sub.C
	assert.False(t, open)
}

func TestFeed_PublishNeverBlocksOnSlowConsumer(t *testing.T) {
	feed := service.NewFeedService(nil)

	sub := feed.Subscribe(1)
	defer sub.Close()

	// Nobody reads sub.C; publishing must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			feed.Publish(service.ChangeEvent{Key: fmt.Sprintf("k%d", i), Kind: model.OpSet})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow consumer")
	}
}

func TestFeed_SubscriptionIDsUnique(t *testing.T) {
	feed := service.NewFeedService(nil)

	a := feed.Subscribe(4)
	defer a.Close()
	b := feed.Subscribe(4)
	defer b.Close()

	assert.NotEqual(t, a.ID, b.ID)
}
