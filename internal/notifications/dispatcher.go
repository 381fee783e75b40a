package notifications

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/pulse/backend/internal/svcerr"
)

var errMissingStore = errors.New("notification store is required")

// Dispatcher builds typed notification records and hands them to the Store. It never publishes
// counters; that is the job of Store observers.
type Dispatcher struct {
	store *Store
}

// NewDispatcher constructs a Dispatcher over store.
func NewDispatcher(store *Store) (*Dispatcher, error) {
	if store == nil {
		return nil, svcerr.New("notifications.dispatcher.new", "missing_store", errMissingStore)
	}
	return &Dispatcher{store: store}, nil
}

// NotifyMention records that sender mentioned recipientID in the content item described by target.
func (d *Dispatcher) NotifyMention(ctx context.Context, recipientID uint64, sender Sender, target Context) (Notification, error) {
	return d.dispatch(ctx, recipientID, TypeMention, Data{
		Sender:  sender,
		Context: &Context{Type: target.Type, ID: target.ID},
	})
}

// NotifyComment records that sender commented on postID, authored by postAuthorID.
func (d *Dispatcher) NotifyComment(ctx context.Context, recipientID uint64, sender Sender, postID, postAuthorID uint64) (Notification, error) {
	authorID := postAuthorID
	return d.dispatch(ctx, recipientID, TypeComment, Data{
		Sender:  sender,
		Context: &Context{Type: ContextPost, ID: postID, AuthorID: &authorID},
	})
}

// NotifyFollow records that sender started following recipientID.
func (d *Dispatcher) NotifyFollow(ctx context.Context, recipientID uint64, sender Sender) (Notification, error) {
	return d.dispatch(ctx, recipientID, TypeFollow, Data{Sender: sender})
}

func (d *Dispatcher) dispatch(ctx context.Context, recipientID uint64, kind Type, data Data) (Notification, error) {
	notification := newNotification(recipientID, kind, data)
	if err := d.store.Create(ctx, &notification); err != nil {
		return Notification{}, err
	}
	return notification, nil
}
