// Package provider defines the abstraction layer between the analysis
// pipeline and third-party multimodal AI vendors. Each vendor speaks its own
// wire dialect (message nesting, video encoding, thinking-mode parameters,
// synchronous vs. streaming clients); adapters in the subpackages translate
// those dialects into one normalized event vocabulary so everything above
// this package is vendor oblivious.
//
// The streaming contract uses four event types:
//  1. Content: an incremental fragment of the answer text
//  2. Thinking: an incremental fragment of vendor reasoning output
//  3. Done: terminal success, carrying the full accumulated text
//  4. Error: terminal failure
//
// Every adapter emits a finite, non-restartable sequence on the returned
// channel: zero or more Content/Thinking events in arrival order, then
// exactly one terminal Done or Error as the last event before the channel
// closes. Adapters never raise vendor faults past the channel boundary; a
// fault mid-stream arrives as the terminal Error after whatever fragments
// were already produced.
//
// Example usage:
//
//	adapter := vendors.New(cfg)
//	events, err := adapter.AnalyzeVideo(ctx, provider.Request{
//	    TaskID:   taskID,
//	    VideoURL: url,
//	    Prompt:   prompt,
//	})
//	if err != nil {
//	    return err
//	}
//	for event := range events {
//	    switch e := event.(type) {
//	    case provider.Content:
//	        // forward fragment
//	    case provider.Done:
//	        // persist e.FullText
//	    case provider.Error:
//	        // mark failed
//	    }
//	}
package provider
