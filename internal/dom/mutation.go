package dom

// MutationType is the kind of a mutation record.
type MutationType string

const (
	MutationChildList  MutationType = "childList"
	MutationAttributes MutationType = "attributes"
)

// MutationRecord describes one change to the tree. Only element nodes are
// reported in AddedNodes and RemovedNodes.
type MutationRecord struct {
	Type          MutationType
	Target        *Element
	AddedNodes    []*Element
	RemovedNodes  []*Element
	AttributeName string
	OldValue      string
	// HadOldValue is false when the attribute did not exist before.
	HadOldValue bool
}

// MutationObserverInit selects what an observer is told about.
type MutationObserverInit struct {
	ChildList       bool
	Attributes      bool
	Subtree         bool
	AttributeFilter []string
}

// MutationCallback receives a batch of records in delivery order.
type MutationCallback func(records []MutationRecord, obs *MutationObserver)

type registration struct {
	target *Element
	init   MutationObserverInit
}

// MutationObserver queues records for the subtrees it observes and hands
// them to its callback when the document delivers mutations.
type MutationObserver struct {
	doc           *Document
	callback      MutationCallback
	registrations []registration
	pending       []MutationRecord
}

// NewMutationObserver creates an observer. It fails when the document was
// built WithoutMutationObserver.
func (d *Document) NewMutationObserver(cb MutationCallback) (*MutationObserver, error) {
	if d.noObserver {
		return nil, ErrMutationObserverUnavailable
	}
	obs := &MutationObserver{doc: d, callback: cb}
	d.observers = append(d.observers, obs)
	return obs, nil
}

// Observe starts observing target. Observing the same target again replaces
// its options.
func (o *MutationObserver) Observe(target *Element, init MutationObserverInit) {
	for i := range o.registrations {
		if o.registrations[i].target == target {
			o.registrations[i].init = init
			return
		}
	}
	o.registrations = append(o.registrations, registration{target: target, init: init})
}

// Disconnect stops observation and drops undelivered records.
func (o *MutationObserver) Disconnect() {
	o.registrations = nil
	o.pending = nil
}

// TakeRecords returns and clears the undelivered records.
func (o *MutationObserver) TakeRecords() []MutationRecord {
	records := o.pending
	o.pending = nil
	return records
}

// Observing reports whether the observer has any registration.
func (o *MutationObserver) Observing() bool {
	return len(o.registrations) > 0
}

// ObserverCount returns how many observers currently observe something.
func (d *Document) ObserverCount() int {
	n := 0
	for _, obs := range d.observers {
		if obs.Observing() {
			n++
		}
	}
	return n
}

// DeliverMutations runs every observer callback with its pending records,
// repeating while callbacks produce new records. It models the host's
// microtask checkpoint and returns the number of records delivered.
func (d *Document) DeliverMutations() int {
	delivered := 0
	for round := 0; round < maxDeliveryRounds; round++ {
		progressed := false
		for _, obs := range append([]*MutationObserver(nil), d.observers...) {
			records := obs.TakeRecords()
			if len(records) == 0 {
				continue
			}
			progressed = true
			delivered += len(records)
			obs.callback(records, obs)
		}
		if !progressed {
			break
		}
	}
	return delivered
}

func (d *Document) queueChildList(target *Element, added, removed []*Element) {
	d.queue(MutationRecord{
		Type:         MutationChildList,
		Target:       target,
		AddedNodes:   added,
		RemovedNodes: removed,
	})
}

func (d *Document) queueAttribute(target *Element, name, old string, had bool) {
	d.queue(MutationRecord{
		Type:          MutationAttributes,
		Target:        target,
		AttributeName: name,
		OldValue:      old,
		HadOldValue:   had,
	})
}

func (d *Document) queue(rec MutationRecord) {
	for _, obs := range d.observers {
		if obs.interested(rec) {
			obs.pending = append(obs.pending, rec)
		}
	}
}

func (o *MutationObserver) interested(rec MutationRecord) bool {
	for _, reg := range o.registrations {
		if reg.target != rec.Target && !(reg.init.Subtree && reg.target.Contains(rec.Target)) {
			continue
		}
		switch rec.Type {
		case MutationChildList:
			if reg.init.ChildList {
				return true
			}
		case MutationAttributes:
			if !reg.init.Attributes {
				continue
			}
			if len(reg.init.AttributeFilter) == 0 {
				return true
			}
			for _, name := range reg.init.AttributeFilter {
				if name == rec.AttributeName {
					return true
				}
			}
		}
	}
	return false
}
