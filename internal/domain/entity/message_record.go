package entity

import "time"

// Direction 消息流向
type Direction string

const (
	DirectionToMaster Direction = "to_master"
	DirectionToSlave  Direction = "to_slave"
)

// MessageRecord 消息关联记录 (主键 MasterMsgID)
type MessageRecord struct {
	MasterMsgID            MasterMessageUID
	MasterMsgIDAlt         MasterMessageUID
	SlaveMessageID         string
	SlaveOriginUID         SlaveChatUID
	SlaveOriginDisplayName string
	SlaveMemberUID         string
	SlaveMemberDisplayName string
	MessageType            MessageKind
	Direction              Direction
	Text                   string
	MediaType              string
	MIME                   string
	FileID                 string
	Snapshot               []byte
	CreatedAt              time.Time
}

// MasterChat returns the master conversation the record belongs to.
func (r *MessageRecord) MasterChat() MasterChatUID {
	return r.MasterMsgID.Chat()
}

// IsPending reports whether delivery to the slave never produced an id.
func (r *MessageRecord) IsPending() bool {
	return IsPendingID(r.SlaveMessageID)
}

// IsChatHead reports whether the record only routes replies to a chat.
func (r *MessageRecord) IsChatHead() bool {
	return r.SlaveMessageID == ChatHeadID
}

// EditTarget is the physical master message that edits must address.
func (r *MessageRecord) EditTarget() MasterMessageUID {
	if r.MasterMsgIDAlt != "" {
		return r.MasterMsgIDAlt
	}
	return r.MasterMsgID
}

// Clone returns a deep copy.
func (r *MessageRecord) Clone() *MessageRecord {
	c := *r
	if r.Snapshot != nil {
		c.Snapshot = append([]byte(nil), r.Snapshot...)
	}
	return &c
}

// RecordPatch is a partial record: nil fields are left untouched by Apply.
type RecordPatch struct {
	MasterMsgIDAlt         *MasterMessageUID
	SlaveMessageID         *string
	SlaveOriginUID         *SlaveChatUID
	SlaveOriginDisplayName *string
	SlaveMemberUID         *string
	SlaveMemberDisplayName *string
	MessageType            *MessageKind
	Direction              *Direction
	Text                   *string
	MediaType              *string
	MIME                   *string
	FileID                 *string
	Snapshot               []byte
}

// PatchFrom selects the non-empty fields of r ("last non-null wins").
func PatchFrom(r *MessageRecord) RecordPatch {
	var p RecordPatch
	if r.MasterMsgIDAlt != "" {
		p.MasterMsgIDAlt = &r.MasterMsgIDAlt
	}
	if r.SlaveMessageID != "" {
		p.SlaveMessageID = &r.SlaveMessageID
	}
	if r.SlaveOriginUID != "" {
		p.SlaveOriginUID = &r.SlaveOriginUID
	}
	if r.SlaveOriginDisplayName != "" {
		p.SlaveOriginDisplayName = &r.SlaveOriginDisplayName
	}
	if r.SlaveMemberUID != "" {
		p.SlaveMemberUID = &r.SlaveMemberUID
	}
	if r.SlaveMemberDisplayName != "" {
		p.SlaveMemberDisplayName = &r.SlaveMemberDisplayName
	}
	if r.MessageType != "" {
		p.MessageType = &r.MessageType
	}
	if r.Direction != "" {
		p.Direction = &r.Direction
	}
	if r.Text != "" {
		p.Text = &r.Text
	}
	if r.MediaType != "" {
		p.MediaType = &r.MediaType
	}
	if r.MIME != "" {
		p.MIME = &r.MIME
	}
	if r.FileID != "" {
		p.FileID = &r.FileID
	}
	if len(r.Snapshot) > 0 {
		p.Snapshot = r.Snapshot
	}
	return p
}

// Apply merges p into r and reports whether any stored value changed.
func (r *MessageRecord) Apply(p RecordPatch) bool {
	changed := false
	setString := func(dst *string, src *string) {
		if src != nil && *dst != *src {
			*dst = *src
			changed = true
		}
	}
	if p.MasterMsgIDAlt != nil && r.MasterMsgIDAlt != *p.MasterMsgIDAlt {
		r.MasterMsgIDAlt = *p.MasterMsgIDAlt
		changed = true
	}
	setString(&r.SlaveMessageID, p.SlaveMessageID)
	if p.SlaveOriginUID != nil && r.SlaveOriginUID != *p.SlaveOriginUID {
		r.SlaveOriginUID = *p.SlaveOriginUID
		changed = true
	}
	setString(&r.SlaveOriginDisplayName, p.SlaveOriginDisplayName)
	setString(&r.SlaveMemberUID, p.SlaveMemberUID)
	setString(&r.SlaveMemberDisplayName, p.SlaveMemberDisplayName)
	if p.MessageType != nil && r.MessageType != *p.MessageType {
		r.MessageType = *p.MessageType
		changed = true
	}
	if p.Direction != nil && r.Direction != *p.Direction {
		r.Direction = *p.Direction
		changed = true
	}
	setString(&r.Text, p.Text)
	setString(&r.MediaType, p.MediaType)
	setString(&r.MIME, p.MIME)
	setString(&r.FileID, p.FileID)
	if p.Snapshot != nil && string(r.Snapshot) != string(p.Snapshot) {
		r.Snapshot = append([]byte(nil), p.Snapshot...)
		changed = true
	}
	return changed
}
