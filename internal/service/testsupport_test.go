package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	apperrors "github.com/Heaven664/messenger-backend/internal/errors"
	"github.com/Heaven664/messenger-backend/internal/model"
	"github.com/Heaven664/messenger-backend/pkg/proto"
)

// 内存版存储后端：克隆-提交模拟事务语义，支持按操作名注入故障
// 服务层测试不依赖 Postgres，事务的原子性由 clone + 整体替换保证

type memData struct {
	users    map[string]*model.User
	chats    map[string]*model.Chat
	messages []*model.Message
	contacts []*model.Contact
}

func newMemData() *memData {
	return &memData{
		users: make(map[string]*model.User),
		chats: make(map[string]*model.Chat),
	}
}

func chatKey(owner, peer string) string {
	return owner + "|" + peer
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, u := range d.users {
		cp := *u
		c.users[k] = &cp
	}
	for k, ch := range d.chats {
		cp := *ch
		c.chats[k] = &cp
	}
	for _, m := range d.messages {
		cp := *m
		c.messages = append(c.messages, &cp)
	}
	for _, ct := range d.contacts {
		cp := *ct
		c.contacts = append(c.contacts, &cp)
	}
	return c
}

type memBackend struct {
	mu     sync.Mutex
	data   *memData
	failOn map[string]error
}

func newMemBackend() *memBackend {
	return &memBackend{
		data:   newMemData(),
		failOn: make(map[string]error),
	}
}

// failWith 让指定操作返回注入的错误
func (b *memBackend) failWith(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failOn[op] = err
}

func (b *memBackend) seedUser(u *model.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := *u
	b.data.users[u.Email] = &cp
}

// Stores 返回连接池视图（每个操作独立加锁，立即生效）
func (b *memBackend) Stores() Stores {
	return storesFor(&memSession{b: b})
}

// WithinTx 模拟仓库层事务：克隆数据，fn 成功才整体替换
func (b *memBackend) WithinTx(ctx context.Context, fn func(tx Stores) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	work := b.data.clone()
	if err := fn(storesFor(&memSession{b: b, data: work, tx: true})); err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperrors.ErrTransactionFailed.Wrap(err)
	}

	b.data = work
	return nil
}

// memSession 一次访问的执行环境：直连时操作当前数据，事务内操作克隆
type memSession struct {
	b    *memBackend
	data *memData
	tx   bool
}

func storesFor(s *memSession) Stores {
	return Stores{
		Users:    &memUsers{s: s},
		Chats:    &memChats{s: s},
		Messages: &memMessages{s: s},
		Contacts: &memContacts{s: s},
	}
}

func (s *memSession) do(op string, fn func(d *memData) error) error {
	if !s.tx {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
	}
	if err := s.b.failOn[op]; err != nil {
		return err
	}
	d := s.data
	if d == nil {
		d = s.b.data
	}
	return fn(d)
}

type memUsers struct{ s *memSession }

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var out *model.User
	err := r.s.do("users.get", func(d *memData) error {
		u, ok := d.users[email]
		if !ok {
			return apperrors.ErrUserNotFound
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

func (r *memUsers) SetOnline(ctx context.Context, email string) error {
	return r.s.do("users.setOnline", func(d *memData) error {
		if u, ok := d.users[email]; ok {
			u.IsOnline = true
		}
		return nil
	})
}

func (r *memUsers) SetOffline(ctx context.Context, email string, lastSeen time.Time) error {
	return r.s.do("users.setOffline", func(d *memData) error {
		if u, ok := d.users[email]; ok {
			u.IsOnline = false
			u.LastSeenTime = lastSeen
		}
		return nil
	})
}

func (r *memUsers) UpdateProfile(ctx context.Context, email string, upd model.ProfileUpdate) error {
	return r.s.do("users.updateProfile", func(d *memData) error {
		u, ok := d.users[email]
		if !ok {
			return apperrors.ErrUserNotFound
		}
		u.Name = upd.Name
		u.AvatarRef = upd.AvatarRef
		u.Residency = upd.Residency
		return nil
	})
}

type memChats struct{ s *memSession }

func (r *memChats) Find(ctx context.Context, ownerEmail, peerEmail string) (*model.Chat, error) {
	var out *model.Chat
	err := r.s.do("chats.find", func(d *memData) error {
		if ch, ok := d.chats[chatKey(ownerEmail, peerEmail)]; ok {
			cp := *ch
			out = &cp
		}
		return nil
	})
	return out, err
}

func (r *memChats) Insert(ctx context.Context, chat *model.Chat) error {
	return r.s.do("chats.insert", func(d *memData) error {
		key := chatKey(chat.OwnerEmail, chat.PeerEmail)
		if _, ok := d.chats[key]; ok {
			return errors.New("duplicate chat row")
		}
		cp := *chat
		d.chats[key] = &cp
		return nil
	})
}

func (r *memChats) IncrementUnread(ctx context.Context, ownerEmail, peerEmail string, lastMessageTime time.Time) error {
	return r.s.do("chats.incrementUnread", func(d *memData) error {
		if ch, ok := d.chats[chatKey(ownerEmail, peerEmail)]; ok {
			ch.UnreadCount++
			ch.LastMessageTime = lastMessageTime
		}
		return nil
	})
}

func (r *memChats) TouchLastMessage(ctx context.Context, ownerEmail, peerEmail string, lastMessageTime time.Time) error {
	return r.s.do("chats.touchLastMessage", func(d *memData) error {
		if ch, ok := d.chats[chatKey(ownerEmail, peerEmail)]; ok {
			ch.LastMessageTime = lastMessageTime
		}
		return nil
	})
}

func (r *memChats) ClearUnread(ctx context.Context, ownerEmail, peerEmail string) error {
	return r.s.do("chats.clearUnread", func(d *memData) error {
		if ch, ok := d.chats[chatKey(ownerEmail, peerEmail)]; ok {
			ch.UnreadCount = 0
		}
		return nil
	})
}

func (r *memChats) SetPeerOnline(ctx context.Context, peerEmail string, online bool) error {
	return r.s.do("chats.setPeerOnline", func(d *memData) error {
		for _, ch := range d.chats {
			if ch.PeerEmail == peerEmail {
				ch.PeerIsOnline = online
			}
		}
		return nil
	})
}

func (r *memChats) SetPeerPresence(ctx context.Context, peerEmail string, online bool, lastSeen time.Time) error {
	return r.s.do("chats.setPeerPresence", func(d *memData) error {
		for _, ch := range d.chats {
			if ch.PeerEmail == peerEmail {
				ch.PeerIsOnline = online
				ch.PeerLastSeenTime = lastSeen
			}
		}
		return nil
	})
}

func (r *memChats) UpdatePeerProfile(ctx context.Context, peerEmail string, upd model.ProfileUpdate) error {
	return r.s.do("chats.updatePeerProfile", func(d *memData) error {
		for _, ch := range d.chats {
			if ch.PeerEmail == peerEmail {
				ch.PeerName = upd.Name
				ch.PeerAvatarRef = upd.AvatarRef
				ch.PeerResidency = upd.Residency
			}
		}
		return nil
	})
}

func (r *memChats) ListByOwner(ctx context.Context, ownerEmail string) ([]*model.Chat, error) {
	var out []*model.Chat
	err := r.s.do("chats.listByOwner", func(d *memData) error {
		for _, ch := range d.chats {
			if ch.OwnerEmail == ownerEmail {
				cp := *ch
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		})
		return nil
	})
	return out, err
}

type memMessages struct{ s *memSession }

func (r *memMessages) Insert(ctx context.Context, msg *model.Message) error {
	return r.s.do("messages.insert", func(d *memData) error {
		cp := *msg
		d.messages = append(d.messages, &cp)
		return nil
	})
}

func (r *memMessages) MarkViewed(ctx context.Context, senderEmail, receiverEmail string) error {
	return r.s.do("messages.markViewed", func(d *memData) error {
		for _, m := range d.messages {
			if m.SenderEmail == senderEmail && m.ReceiverEmail == receiverEmail {
				m.Viewed = true
			}
		}
		return nil
	})
}

func (r *memMessages) ListBetween(ctx context.Context, emailA, emailB string) ([]*model.Message, error) {
	var out []*model.Message
	err := r.s.do("messages.listBetween", func(d *memData) error {
		for _, m := range d.messages {
			if (m.SenderEmail == emailA && m.ReceiverEmail == emailB) ||
				(m.SenderEmail == emailB && m.ReceiverEmail == emailA) {
				cp := *m
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].SentTime.Before(out[j].SentTime)
		})
		return nil
	})
	return out, err
}

type memContacts struct{ s *memSession }

func (r *memContacts) FindFriendship(ctx context.Context, emailA, emailB string) (*model.Contact, error) {
	var out *model.Contact
	err := r.s.do("contacts.findFriendship", func(d *memData) error {
		for _, c := range d.contacts {
			if c.Has(emailA) && c.Has(emailB) {
				cp := *c
				out = &cp
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *memContacts) Create(ctx context.Context, contact *model.Contact) error {
	return r.s.do("contacts.create", func(d *memData) error {
		for _, c := range d.contacts {
			if c.Has(contact.MemberA.Email) && c.Has(contact.MemberB.Email) {
				return apperrors.ErrAlreadyFriends
			}
		}
		cp := *contact
		d.contacts = append(d.contacts, &cp)
		return nil
	})
}

func (r *memContacts) ListForUser(ctx context.Context, email string) ([]*model.Contact, error) {
	var out []*model.Contact
	err := r.s.do("contacts.listForUser", func(d *memData) error {
		for _, c := range d.contacts {
			if c.Has(email) {
				cp := *c
				out = append(out, &cp)
			}
		}
		return nil
	})
	return out, err
}

func (r *memContacts) UpdateMemberProfile(ctx context.Context, email string, upd model.ProfileUpdate) error {
	return r.s.do("contacts.updateMember", func(d *memData) error {
		for _, c := range d.contacts {
			if c.MemberA.Email == email {
				c.MemberA.Name = upd.Name
				c.MemberA.AvatarRef = upd.AvatarRef
				c.MemberA.Residency = upd.Residency
			}
			if c.MemberB.Email == email {
				c.MemberB.Name = upd.Name
				c.MemberB.AvatarRef = upd.AvatarRef
				c.MemberB.Residency = upd.Residency
			}
		}
		return nil
	})
}

// capturePublisher 记录所有下行事件的发布器
type capturePublisher struct {
	mu        sync.Mutex
	events    []*proto.DownstreamEvent
	onPublish func()
	failErr   error
}

func (p *capturePublisher) PublishToUser(event *proto.DownstreamEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	if p.onPublish != nil {
		p.onPublish()
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) all() []*proto.DownstreamEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*proto.DownstreamEvent(nil), p.events...)
}

func (p *capturePublisher) eventsFor(email string) []*proto.DownstreamEvent {
	var out []*proto.DownstreamEvent
	for _, e := range p.all() {
		if e.To == email {
			out = append(out, e)
		}
	}
	return out
}
