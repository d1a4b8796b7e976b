package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/Conversly/assistant-relay/internal/config"
	"github.com/Conversly/assistant-relay/internal/conversation"
	"github.com/Conversly/assistant-relay/internal/core"
	"github.com/Conversly/assistant-relay/internal/tenant"
	"github.com/Conversly/assistant-relay/internal/threads"
	"github.com/Conversly/assistant-relay/internal/utils"
)

// Replies for message types the assistant is not asked about.
const (
	ImageReply       = "I can see you sent an image. How can I help you with it?"
	AudioReply       = "I received your audio message. Could you please send a text message instead?"
	DocumentReply    = "I can see you sent a document. How can I help you with it?"
	UnsupportedReply = "I received your message but I can only respond to text messages at the moment."
)

const (
	nodePrepare  = "prepare"
	nodeThread   = "thread"
	nodeGenerate = "generate"
	nodeFormat   = "format"
	nodeSend     = "send"
)

// turn is the state passed between reply graph nodes
type turn struct {
	event    core.InboundEvent
	tenant   config.TenantConfig
	threadID string
	reply    string
}

// Service turns one inbound message into one outbound reply
type Service struct {
	resolver *tenant.Resolver
	threads  *threads.Store
	conv     *conversation.Client
	sender   *Sender
	graph    compose.Runnable[core.InboundEvent, core.OutboundReply]
}

func NewService(ctx context.Context, resolver *tenant.Resolver, store *threads.Store, conv *conversation.Client, sender *Sender) (*Service, error) {
	s := &Service{
		resolver: resolver,
		threads:  store,
		conv:     conv,
		sender:   sender,
	}

	graph, err := s.buildGraph(ctx)
	if err != nil {
		return nil, err
	}
	s.graph = graph
	return s, nil
}

// buildGraph wires prepare -> thread -> generate -> format -> send. Non-text
// messages skip straight from prepare to format with a canned reply.
func (s *Service) buildGraph(ctx context.Context) (compose.Runnable[core.InboundEvent, core.OutboundReply], error) {
	graph := compose.NewGraph[core.InboundEvent, core.OutboundReply]()

	if err := graph.AddLambdaNode(nodePrepare, compose.InvokableLambda(s.prepare)); err != nil {
		return nil, err
	}
	if err := graph.AddLambdaNode(nodeThread, compose.InvokableLambda(s.resolveThread)); err != nil {
		return nil, err
	}
	if err := graph.AddLambdaNode(nodeGenerate, compose.InvokableLambda(s.generate)); err != nil {
		return nil, err
	}
	if err := graph.AddLambdaNode(nodeFormat, compose.InvokableLambda(s.format)); err != nil {
		return nil, err
	}
	if err := graph.AddLambdaNode(nodeSend, compose.InvokableLambda(s.send)); err != nil {
		return nil, err
	}

	branch := compose.NewGraphBranch(func(ctx context.Context, t *turn) (string, error) {
		if t.reply != "" {
			return nodeFormat, nil
		}
		return nodeThread, nil
	}, map[string]bool{nodeThread: true, nodeFormat: true})

	steps := []error{
		graph.AddEdge(compose.START, nodePrepare),
		graph.AddBranch(nodePrepare, branch),
		graph.AddEdge(nodeThread, nodeGenerate),
		graph.AddEdge(nodeGenerate, nodeFormat),
		graph.AddEdge(nodeFormat, nodeSend),
		graph.AddEdge(nodeSend, compose.END),
	}
	for _, err := range steps {
		if err != nil {
			return nil, fmt.Errorf("failed to wire reply graph: %w", err)
		}
	}

	compiled, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("reply graph compilation failed: %w", err)
	}
	return compiled, nil
}

// Process answers one inbound message. Assistant and send failures are
// reported through OutboundReply.Sent, not as errors.
func (s *Service) Process(ctx context.Context, event core.InboundEvent) (core.OutboundReply, error) {
	startTime := time.Now()

	reply, err := s.graph.Invoke(ctx, event)
	if err != nil {
		return core.OutboundReply{}, fmt.Errorf("reply graph invocation failed: %w", err)
	}

	utils.Zlog.Info("WhatsApp message processed",
		zap.String("request_id", event.RequestID),
		zap.String("sender_id", event.SenderID),
		zap.String("thread_id", reply.ThreadID),
		zap.Bool("sent", reply.Sent),
		zap.Int64("latency_ms", time.Since(startTime).Milliseconds()))
	return reply, nil
}

func (s *Service) prepare(ctx context.Context, event core.InboundEvent) (*turn, error) {
	t := &turn{
		event:  event,
		tenant: s.resolver.ResolveMetadata(event.BusinessNumber, event.PhoneNumberID),
	}

	utils.Zlog.Info("Received WhatsApp message",
		zap.String("request_id", event.RequestID),
		zap.String("business_number", event.BusinessNumber),
		zap.String("tenant", t.tenant.BusinessNumber),
		zap.String("sender_id", event.SenderID),
		zap.String("sender_name", event.SenderName),
		zap.String("message_type", string(event.MessageType)),
		zap.String("message_id", event.MessageID))

	if !event.IsText() {
		t.reply = cannedReply(event.MessageType)
	}
	return t, nil
}

func cannedReply(messageType core.MessageType) string {
	switch messageType {
	case core.MessageTypeImage:
		return ImageReply
	case core.MessageTypeAudio:
		return AudioReply
	case core.MessageTypeDocument:
		return DocumentReply
	}
	return UnsupportedReply
}

func (s *Service) resolveThread(ctx context.Context, t *turn) (*turn, error) {
	threadID, err := s.threads.GetOrCreate(ctx, t.event.SenderID)
	if err != nil {
		utils.Zlog.Error("Failed to get or create thread",
			zap.String("sender_id", t.event.SenderID),
			zap.Error(err))
		t.reply = conversation.ErrorReply
		return t, nil
	}
	t.threadID = threadID
	return t, nil
}

func (s *Service) generate(ctx context.Context, t *turn) (*turn, error) {
	if t.reply != "" {
		return t, nil
	}
	t.reply = s.conv.GenerateReply(ctx, t.threadID, t.tenant.AssistantID, t.event.Text)
	return t, nil
}

func (s *Service) format(ctx context.Context, t *turn) (*turn, error) {
	t.reply = ProcessTextForWhatsApp(t.reply)
	if t.reply == "" {
		t.reply = conversation.NoAnswerReply
	}
	return t, nil
}

func (s *Service) send(ctx context.Context, t *turn) (core.OutboundReply, error) {
	out := core.OutboundReply{
		RecipientID:   t.event.SenderID,
		PhoneNumberID: t.tenant.PhoneNumberID,
		Text:          t.reply,
		ThreadID:      t.threadID,
	}
	out.Sent = s.sender.Send(ctx, out.RecipientID, out.Text, t.tenant)
	return out, nil
}
