package server

import (
	"bytes"
	"net/http"

	"github.com/jasonish/evedetect/eve"
	"github.com/jasonish/evedetect/packet"
	"github.com/pkg/errors"
)

// Eve2PcapHandler converts the packet of an alert, posted as the form
// field "event", to a pcap file.
func Eve2PcapHandler(appContext AppContext, r *http.Request) interface{} {
	if err := r.ParseForm(); err != nil {
		return err
	}

	jsonEvent := r.FormValue("event")
	if jsonEvent == "" {
		return errors.New("form field \"event\" not provided")
	}
	event, err := eve.NewEveEventFromBytes([]byte(jsonEvent))
	if err != nil {
		return errors.Wrap(err, "failed to decode event")
	}

	frame, err := eve.PacketFrame(event)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := packet.WritePcap(&buf, []packet.Frame{frame}); err != nil {
		return HttpErrorResponse(http.StatusInternalServerError,
			"failed to convert to pcap: "+err.Error())
	}

	return HttpBytesResponse("application/vnd.tcpdump.pcap", buf.Bytes(), map[string]string{
		"Content-Disposition": "attachment; filename=event.pcap",
	})
}
