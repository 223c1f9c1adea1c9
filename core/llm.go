package orchestration

import (
	"strings"

	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/voiceloop/voiceloop-core/core/llms"
)

// llm is the facade over the configured text-generation client.
type llm struct {
	client LLMWithStream

	// instructions is the system prompt sent ahead of every generation.
	instructions string
}

func (g *llm) set(client LLMWithStream) {
	if g != nil {
		g.client = client
	}
}

func (g *llm) setInstructions(instructions string) {
	if g != nil {
		g.instructions = instructions
	}
}

func (g *llm) isConfigured() bool {
	return g != nil && g.client != nil
}

// generate streams a reply for utterance on top of the prior conversation,
// invoking onSegment with the cumulative reply-so-far as chunks arrive. It
// returns the full reply text accumulated up to completion or failure.
func (g *llm) generate(
	ctx context.Context,
	utterance string,
	history []llms.Turn,
	onSegment func(cumulative string),
) (string, error) {
	if !g.isConfigured() {
		return "", nil
	}

	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()
	span.SetAttributes(attribute.Int("request.history_turns", len(history)))

	stream := g.client.PromptWithStream(ctx, utterance,
		llms.WithInstructions(g.instructions),
		llms.WithTurns(history),
	)

	var reply strings.Builder
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return reply.String(), err
		}

		if content, ok := chunk.(llms.StreamContentChunk); ok {
			reply.WriteString(content.Content())
			if onSegment != nil {
				onSegment(reply.String())
			}
		}
	}

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return reply.String(), err
	}

	span.SetAttributes(attribute.Int("response.length", reply.Len()))
	return reply.String(), nil
}
