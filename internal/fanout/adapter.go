package fanout

import (
	"context"
	"log"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// State of a subscription. No error state is modeled; delivery failures are
// logged and re-subscription is the caller's responsibility.
type State int

const (
	StateUnsubscribed State = iota
	StateSubscribing
	StateActive
)

const fetchTimeout = 10 * time.Second

// Adapter turns raw bus events into enriched listener callbacks. It holds at
// most one active subscription per conversation id and one list subscription
// per user id.
type Adapter struct {
	bus           *Bus
	messages      repositories.MessageRepository
	profiles      repositories.ProfileRepository
	conversations repositories.ConversationRepository

	mu       sync.Mutex
	convSubs map[string]*subscription
	listSubs map[string]*subscription
}

type subscription struct {
	state  State
	cancel func()
}

// NewAdapter constructs an Adapter over the given bus and repositories.
func NewAdapter(bus *Bus, messages repositories.MessageRepository, profiles repositories.ProfileRepository, conversations repositories.ConversationRepository) *Adapter {
	return &Adapter{
		bus:           bus,
		messages:      messages,
		profiles:      profiles,
		conversations: conversations,
		convSubs:      make(map[string]*subscription),
		listSubs:      make(map[string]*subscription),
	}
}

// SubscribeToConversation delivers enriched new-message and message-update
// callbacks for one conversation. A second call for the same id tears down
// the prior subscription first, so listeners never accumulate.
func (a *Adapter) SubscribeToConversation(conversationID string, onNewMessage, onMessageUpdate func(models.MessageWithSender)) {
	a.mu.Lock()
	if prev, ok := a.convSubs[conversationID]; ok {
		if prev.cancel != nil {
			prev.cancel()
		}
		prev.state = StateUnsubscribed
	}
	sub := &subscription{state: StateSubscribing}
	a.convSubs[conversationID] = sub
	a.mu.Unlock()

	cancel := a.bus.Subscribe(func(e Event) {
		if e.Table != TableMessages || e.ConversationID != conversationID {
			return
		}
		go a.deliverMessage(e, onNewMessage, onMessageUpdate)
	})

	a.mu.Lock()
	// A concurrent resubscribe may have replaced us while the bus hook was
	// being installed; if so, release the hook instead of activating.
	if a.convSubs[conversationID] == sub {
		sub.cancel = cancel
		sub.state = StateActive
	} else {
		cancel()
	}
	a.mu.Unlock()
}

func (a *Adapter) deliverMessage(e Event, onNewMessage, onMessageUpdate func(models.MessageWithSender)) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	msg, err := a.messages.GetMessage(ctx, e.MessageID)
	if err != nil {
		log.Printf("fanout: message fetch failed message=%s: %v", e.MessageID, err)
		return
	}

	enriched := a.enrich(ctx, msg)
	switch e.Action {
	case ActionInsert:
		onNewMessage(enriched)
	case ActionUpdate:
		onMessageUpdate(enriched)
	}
}

func (a *Adapter) enrich(ctx context.Context, msg models.Message) models.MessageWithSender {
	enriched := models.MessageWithSender{Message: msg, SenderName: models.UnknownUserName}
	profiles, err := a.profiles.GetProfiles(ctx, []string{msg.SenderID})
	if err != nil {
		log.Printf("fanout: sender profile lookup failed sender=%s: %v", msg.SenderID, err)
		return enriched
	}
	if profile, ok := profiles[msg.SenderID]; ok {
		enriched.SenderName = profile.DisplayName
		if profile.ProfileImageURL != nil {
			enriched.SenderAvatar = *profile.ProfileImageURL
		}
	}
	return enriched
}

// SubscribeToConversations re-runs the user's full conversation listing on
// any conversation-table change. Coarse invalidation, not incremental
// patching.
func (a *Adapter) SubscribeToConversations(userID string, onUpdate func([]models.ConversationSummary)) {
	a.mu.Lock()
	if prev, ok := a.listSubs[userID]; ok {
		if prev.cancel != nil {
			prev.cancel()
		}
		prev.state = StateUnsubscribed
	}
	sub := &subscription{state: StateSubscribing}
	a.listSubs[userID] = sub
	a.mu.Unlock()

	cancel := a.bus.Subscribe(func(e Event) {
		if e.Table != TableConversations {
			return
		}
		go a.deliverListing(userID, onUpdate)
	})

	a.mu.Lock()
	if a.listSubs[userID] == sub {
		sub.cancel = cancel
		sub.state = StateActive
	} else {
		cancel()
	}
	a.mu.Unlock()
}

func (a *Adapter) deliverListing(userID string, onUpdate func([]models.ConversationSummary)) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	summaries, err := a.conversations.ListConversations(ctx, userID)
	if err != nil {
		log.Printf("fanout: relist failed user=%s: %v", userID, err)
		return
	}
	onUpdate(summaries)
}

// UnsubscribeFromConversation releases the conversation's subscription.
func (a *Adapter) UnsubscribeFromConversation(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sub, ok := a.convSubs[conversationID]; ok {
		if sub.cancel != nil {
			sub.cancel()
		}
		sub.state = StateUnsubscribed
		delete(a.convSubs, conversationID)
	}
}

// UnsubscribeFromConversations releases the user's list subscription.
func (a *Adapter) UnsubscribeFromConversations(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sub, ok := a.listSubs[userID]; ok {
		if sub.cancel != nil {
			sub.cancel()
		}
		sub.state = StateUnsubscribed
		delete(a.listSubs, userID)
	}
}

// UnsubscribeAll releases every subscription. Must be called on teardown so
// no channel resources leak.
func (a *Adapter) UnsubscribeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, sub := range a.convSubs {
		if sub.cancel != nil {
			sub.cancel()
		}
		sub.state = StateUnsubscribed
		delete(a.convSubs, id)
	}
	for id, sub := range a.listSubs {
		if sub.cancel != nil {
			sub.cancel()
		}
		sub.state = StateUnsubscribed
		delete(a.listSubs, id)
	}
}

// ConversationState reports the lifecycle state of a conversation
// subscription.
func (a *Adapter) ConversationState(conversationID string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if sub, ok := a.convSubs[conversationID]; ok {
		return sub.state
	}
	return StateUnsubscribed
}
