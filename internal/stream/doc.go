// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream implements the chat-completion event stream wire format.
//
// Every frame is "data: " + JSON + "\n\n" where the JSON is a
// chat.completion.chunk envelope, and the stream ends with the literal
// frame "data: [DONE]\n\n".
//
// The gateway uses Writer to emit frames and the chat client uses Decoder to
// turn a response body back into text deltas:
//
//	dec := stream.NewDecoder(resp.Body)
//	for {
//	    delta, err := dec.Next(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package stream
