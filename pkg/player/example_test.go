package player_test

import (
	"encoding/json"
	"fmt"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
	"github.com/openfroyo/mpvbridge/pkg/player"
)

func ExampleEventChannel() {
	fmt.Println(player.EventChannel("main"))
	// Output: mpv-event-main
}

func ExampleConfig() {
	var cfg player.Config
	raw := `{"initialOptions":{"volume":50,"mute":false},"observedProperties":{"pause":"flag"}}`
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		fmt.Println(err)
		return
	}

	for _, o := range cfg.InitialOptions {
		v, _ := libmpv.EncodeOptionValue(o.Value)
		fmt.Printf("%s=%s\n", o.Name, v)
	}
	for i, p := range cfg.ObservedProperties {
		fmt.Printf("observe %d %s %s\n", i+1, p.Name, p.Format)
	}
	// Output:
	// volume=50
	// mute=no
	// observe 1 pause flag
}
