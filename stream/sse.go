package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tensorzero/tensorzero-sub023/providers"
)

// WriteSSE encodes a provider's native StreamChunk channel onto w as
// server-sent events, framing every chunk as "data: ...\n\n" and emitting
// the terminal "data: [DONE]\n\n" sentinel once the channel closes.
func WriteSSE(w http.ResponseWriter, ch <-chan providers.StreamChunk) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, _ := w.(http.Flusher)
	now := time.Now().Unix()

	for chunk := range ch {
		if chunk.Error != nil {
			errData := fmt.Sprintf(`{"error":{"message":%q,"type":"stream_error"}}`, chunk.Error.Error())
			_, _ = fmt.Fprintf(w, "data: %s\n\n", errData)
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if chunk.Object == "" {
			chunk.Object = "chat.completion.chunk"
		}
		if chunk.Created == 0 {
			chunk.Created = now
		}
		data, _ := json.Marshal(chunk)
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", providers.SSEDone)
	if flusher != nil {
		flusher.Flush()
	}
}
