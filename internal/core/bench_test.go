package core

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkChannelBroadcast(b *testing.B, recipients int) {
	g, _ := newTestGateway(OpenAdmission{})

	channel := RoomChannel("bench")
	conns := make([]*fakeConn, 0, recipients)
	for i := range recipients {
		c := newFakeConn("c" + strconv.Itoa(i))
		if _, err := g.Connect(context.Background(), c, ""); err != nil {
			b.Fatalf("connect: %v", err)
		}
		// Anonymous joins keep the setup free of presence chatter.
		g.Dispatch(c, Command{Kind: CommandJoin, Channel: channel, Identity: ""})
		conns = append(conns, c)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := conns[0]
	for _, c := range conns[1:] {
		go func(cl *fakeConn) {
			for range cl.events {
			}
		}(c)
	}
	for len(target.events) > 0 {
		<-target.events
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		g.Publish(channel, "new_message", "payload")
		<-target.events
	}
}

func BenchmarkChannelBroadcast_10(b *testing.B)  { benchmarkChannelBroadcast(b, 10) }
func BenchmarkChannelBroadcast_100(b *testing.B) { benchmarkChannelBroadcast(b, 100) }
func BenchmarkChannelBroadcast_500(b *testing.B) { benchmarkChannelBroadcast(b, 500) }
