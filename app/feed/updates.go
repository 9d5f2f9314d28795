package feed

import (
	"fmt"
	"time"
)

type UpdateType string

const (
	UpdateAdd    UpdateType = "add"
	UpdateModify UpdateType = "modify"
	UpdateRemove UpdateType = "remove"
)

// Update is one change to apply to a feed. ItemID is the link of the
// target item for modify and remove.
type Update struct {
	Type   UpdateType `json:"type"`
	ItemID string     `json:"item_id,omitempty"`
	Data   ItemConfig `json:"data"`
}

// ApplyUpdates returns a copy of doc with updates applied in order and
// lastBuildDate set to now. doc itself is left untouched. The copy has no
// raw tree; serialize it with the Generator before validating.
func ApplyUpdates(doc *Document, updates []Update, now time.Time) (*Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	next := &Document{
		Version: doc.Version,
		Channel: doc.Channel,
		Items:   make([]Item, 0, len(doc.Items)),
	}
	for _, item := range doc.Items {
		next.Items = append(next.Items, copyItem(item))
	}
	next.Channel.LastBuildDate = FormatDate(now)

	for i, u := range updates {
		var err error
		switch u.Type {
		case UpdateAdd:
			err = next.add(u.Data, now)
		case UpdateModify:
			err = next.modify(u.ItemID, u.Data)
		case UpdateRemove:
			err = next.remove(u.ItemID)
		default:
			err = fmt.Errorf("unknown update type %q", u.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("update %d: %w", i+1, err)
		}
	}

	return next, nil
}

func (d *Document) add(ic ItemConfig, now time.Time) error {
	if ic.Link == "" {
		return fmt.Errorf("item link is required")
	}
	if d.indexOf(ic.Link) >= 0 {
		return fmt.Errorf("item %s already exists", ic.Link)
	}
	item, err := newItem(ic, now)
	if err != nil {
		return err
	}
	d.Items = append(d.Items, item)
	return nil
}

func (d *Document) modify(link string, ic ItemConfig) error {
	i := d.indexOf(link)
	if i < 0 {
		return fmt.Errorf("item %s not found", link)
	}

	item := &d.Items[i]
	if ic.Title != "" {
		item.Title = ic.Title
	}
	if ic.Description != "" {
		item.Description = ic.Description
	}
	if ic.PubDate != "" {
		item.PubDate = ic.PubDate
	}
	if ic.Categories != nil {
		item.Categories = append([]string(nil), ic.Categories...)
	}
	if ic.ImpactSummary != "" {
		item.Impact.Summary = ic.ImpactSummary
	}
	if ic.AffectedUsers != "" {
		item.Impact.AffectedUsers = ic.AffectedUsers
	}
	if ic.Metrics != nil {
		item.Impact.Metrics = sortedMetrics(ic.Metrics)
	}
	return nil
}

func (d *Document) remove(link string) error {
	i := d.indexOf(link)
	if i < 0 {
		return fmt.Errorf("item %s not found", link)
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
	return nil
}

func (d *Document) indexOf(link string) int {
	for i, item := range d.Items {
		if item.Link == link {
			return i
		}
	}
	return -1
}

func copyItem(item Item) Item {
	item.Categories = append([]string(nil), item.Categories...)
	item.Impact.Metrics = append([]Metric(nil), item.Impact.Metrics...)
	item.Impact.Risks = append([]string(nil), item.Impact.Risks...)
	item.Impact.Mitigations = append([]string(nil), item.Impact.Mitigations...)
	return item
}
