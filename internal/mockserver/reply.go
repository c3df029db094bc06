package mockserver

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tide-dev/tide/internal/model"
)

const maxTitleRunes = 50

func header(sessionID, messageID string, typ model.PartType) model.PartHeader {
	return model.PartHeader{
		ID:        newID(partPrefix),
		MessageID: messageID,
		SessionID: sessionID,
		Type:      typ,
	}
}

// titleFrom derives a session title from the first prompt.
func titleFrom(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}
	r := []rune(line)
	return strings.TrimSpace(string(r[:maxTitleRunes-3])) + "..."
}

// ReplyText is the scripted answer to a prompt.
func ReplyText(prompt string) string {
	return "You said: **" + prompt + "**\n\nThis reply comes from the tide mock server."
}

// chunks splits text into word-sized deltas that concatenate back to text.
func chunks(text string) []string {
	var out []string
	for _, c := range strings.SplitAfter(text, " ") {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) startReply(sessionID, prompt string, sel *model.ModelSelection) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.reply(s.ctx, sessionID, prompt, sel); err != nil {
			s.logger.Debug().Err(err).Str("session_id", sessionID).Msg("reply abandoned")
		}
	}()
}

// reply streams an assistant message the way the real backend does:
// message.updated, step-start, reasoning snapshots, a tool call, text
// deltas, step-finish and finally message.updated with time.completed.
// The stored transcript is updated before every event so a snapshot taken
// at any point agrees with what has been streamed.
func (s *Server) reply(ctx context.Context, sessionID, prompt string, sel *model.ModelSelection) error {
	providerID, modelID := MockProviderID, MockModelID
	if sel != nil && sel.ModelID != "" {
		providerID, modelID = sel.ProviderID, sel.ModelID
	}

	msgID := newID(messagePrefix)
	info := model.Message{
		ID:         msgID,
		SessionID:  sessionID,
		Role:       model.RoleAssistant,
		Time:       model.MessageTime{Created: nowMillis()},
		ModelID:    modelID,
		ProviderID: providerID,
	}
	if err := s.pause(ctx); err != nil {
		return err
	}
	if _, ok := s.state.AddMessage(model.MessageWithParts{Info: info}); !ok {
		return errSessionGone
	}
	s.metrics.messages.WithLabelValues(string(model.RoleAssistant)).Inc()
	s.publishMessage(info)

	emit := func(p model.Part, delta *string) error {
		if err := s.pause(ctx); err != nil {
			return err
		}
		if !s.state.PutPart(p) {
			return errSessionGone
		}
		ev, err := model.PartUpdatedEvent(p, delta)
		if err != nil {
			return err
		}
		s.Publish(ev)
		return nil
	}

	if err := emit(model.StepStartPart{PartHeader: header(sessionID, msgID, model.PartTypeStepStart)}, nil); err != nil {
		return err
	}

	reasoning := model.ReasoningPart{PartHeader: header(sessionID, msgID, model.PartTypeReasoning)}
	for _, r := range []string{"Reading the prompt.", "Reading the prompt. Echoing it back."} {
		reasoning.Text = r
		if err := emit(reasoning, nil); err != nil {
			return err
		}
	}

	tool := model.ToolPart{
		PartHeader: header(sessionID, msgID, model.PartTypeTool),
		Tool:       "echo",
		CallID:     newID("call_"),
	}
	input := map[string]any{"text": prompt}
	for _, st := range []model.ToolState{
		{Status: model.ToolStatusPending, Input: input},
		{Status: model.ToolStatusRunning, Input: input, Title: "Echo prompt"},
		{Status: model.ToolStatusCompleted, Input: input, Title: "Echo prompt", Output: prompt},
	} {
		state := st
		tool.State = &state
		if err := emit(tool, nil); err != nil {
			return err
		}
	}

	text := model.TextPart{PartHeader: header(sessionID, msgID, model.PartTypeText)}
	for _, c := range chunks(ReplyText(prompt)) {
		delta := c
		text.Text += c
		if err := emit(text, &delta); err != nil {
			return err
		}
	}

	finish := model.StepFinishPart{
		PartHeader: header(sessionID, msgID, model.PartTypeStepFinish),
		Reason:     "stop",
		Tokens:     &model.TokenUsage{Input: len(prompt), Output: len(text.Text)},
	}
	if err := emit(finish, nil); err != nil {
		return err
	}

	if err := s.pause(ctx); err != nil {
		return err
	}
	done := nowMillis()
	info.Time.Completed = &done
	if !s.state.UpdateInfo(info) {
		return errSessionGone
	}
	s.publishMessage(info)
	s.logger.Info().Str("session_id", sessionID).Str("message_id", msgID).Msg("reply completed")
	return nil
}

func (s *Server) pause(ctx context.Context) error {
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Server) publishMessage(info model.Message) {
	ev, err := model.MessageUpdatedEvent(info)
	if err != nil {
		s.logger.Error().Err(err).Msg("building message event")
		return
	}
	s.Publish(ev)
}
