package libmpv_test

import (
	"fmt"

	"github.com/openfroyo/mpvbridge/pkg/libmpv"
)

// ExampleMarshalEvent shows the JSON shape of a decoded event.
func ExampleMarshalEvent() {
	ev := libmpv.PropertyChangeEvent{Name: "volume", Data: libmpv.Double(80), ID: 2}

	out, err := libmpv.MarshalEvent(ev)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(string(out))
	// Output: {"event":"property-change","name":"volume","data":80,"id":2}
}

// ExampleParseJSON converts a JSON option map into an ordered Node.
func ExampleParseJSON() {
	opts, err := libmpv.ParseJSON([]byte(`{"volume":50,"mute":false}`))
	if err != nil {
		fmt.Println(err)
		return
	}
	for _, e := range opts.Entries() {
		value, _ := libmpv.EncodeOptionValue(e.Value)
		fmt.Printf("%s=%s\n", e.Key, value)
	}
	// Output:
	// volume=50
	// mute=no
}
