package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/mpvbridge/pkg/stores"
	"github.com/openfroyo/mpvbridge/pkg/telemetry"
)

// ExampleNewJournal demonstrates creating and initializing a journal.
func ExampleNewJournal() {
	journal, err := stores.NewJournal(stores.Config{
		Path: stores.MemoryPath,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := journal.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer journal.Close()

	if err := journal.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Journal initialized successfully")
	// Output: Journal initialized successfully
}

// ExampleJournal_RecordSessionStarted demonstrates a session row's lifecycle.
func ExampleJournal_RecordSessionStarted() {
	journal, _ := stores.NewJournal(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = journal.Init(ctx)
	_ = journal.Migrate(ctx)
	defer journal.Close()

	started := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	session, err := journal.RecordSessionStarted(ctx, "main", "mpv-event-main", started)
	if err != nil {
		log.Fatal(err)
	}

	if err := journal.RecordSessionEnded(ctx, "main", "destroyed", started.Add(90*time.Second)); err != nil {
		log.Fatal(err)
	}

	got, err := journal.GetSession(ctx, session.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Session %s %s after %s\n", got.Session, got.Status, got.EndedAt.Sub(got.StartedAt))
	// Output: Session main ended after 1m30s
}

// ExampleJournal_Subscriber demonstrates journaling the player event bus.
func ExampleJournal_Subscriber() {
	journal, _ := stores.NewJournal(stores.Config{Path: stores.MemoryPath})
	ctx := context.Background()
	_ = journal.Init(ctx)
	_ = journal.Migrate(ctx)
	defer journal.Close()

	bus, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Shutdown(ctx)
	bus.Subscribe(journal.Subscriber(), nil)

	_ = bus.PublishSessionStarted("main", "mpv-event-main")
	_ = bus.PublishPlayerEvent("main", "mpv-event-main", "idle", []byte(`{"event":"idle"}`))

	events, err := journal.ListEvents(ctx, nil, nil, 0, 0)
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range events {
		fmt.Println(e.Type)
	}
	// Output:
	// session.started
	// player.event
}
