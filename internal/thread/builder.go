// Package thread reconstructs conversations from flat message records
// using reply headers, with a subject-based fallback for records that
// carry no usable linkage.
package thread

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/nhle/mailbrief/internal/model"
)

// DefaultSubjectWindow is the largest gap between consecutive messages
// that the subject fallback still treats as one conversation.
const DefaultSubjectWindow = 72 * time.Hour

// Options controls grouping.
type Options struct {
	// SubjectWindow bounds the subject fallback. Zero or negative disables
	// the fallback entirely.
	SubjectWindow time.Duration
}

// DefaultOptions returns the options used when no configuration is given.
func DefaultOptions() Options {
	return Options{SubjectWindow: DefaultSubjectWindow}
}

// Build groups records into conversations. The result is the same for
// any permutation of records. Groups are ordered newest first by their
// most recent member; members are ordered oldest first.
//
// Build never fails: malformed or cyclic headers degrade to smaller
// groups, in the worst case one singleton group per record.
func Build(records []model.MessageRecord, opts Options) []model.ThreadGroup {
	if len(records) == 0 {
		return nil
	}

	index := indexRecords(records)
	ids := make([]string, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	r := &resolver{index: index, roots: make(map[string]string, len(index))}
	members := make(map[string][]string)
	for _, id := range ids {
		root := r.root(id)
		members[root] = append(members[root], id)
	}

	// Header singletons are the only candidates for subject fallback.
	var clusters [][]string
	var singletons []model.MessageRecord
	for _, ms := range members {
		if len(ms) == 1 {
			singletons = append(singletons, index[ms[0]])
			continue
		}
		clusters = append(clusters, ms)
	}
	clusters = append(clusters, clusterBySubject(singletons, opts.SubjectWindow)...)

	groups := make([]model.ThreadGroup, 0, len(clusters))
	for _, ms := range clusters {
		groups = append(groups, newGroup(index, ms))
	}

	sort.Slice(groups, func(i, j int) bool {
		li, lj := groups[i].LatestAt(), groups[j].LatestAt()
		if !li.Equal(lj) {
			return li.After(lj)
		}
		return groups[i].ID < groups[j].ID
	})
	return groups
}

// indexRecords maps identifiers to records. Records without an identifier
// get a synthetic one; duplicates collapse to a single record chosen by
// content, not by position.
func indexRecords(records []model.MessageRecord) map[string]model.MessageRecord {
	index := make(map[string]model.MessageRecord, len(records))
	for _, rec := range records {
		rec.ID = cleanID(rec.ID)
		rec.InReplyTo = cleanID(rec.InReplyTo)
		rec.References = cleanIDs(rec.References)
		if rec.ID == "" {
			rec.ID = syntheticID(rec)
		}
		if prev, ok := index[rec.ID]; ok && !preferred(rec, prev) {
			continue
		}
		index[rec.ID] = rec
	}
	return index
}

func cleanID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

func cleanIDs(ids []string) []string {
	var out []string
	for _, id := range ids {
		if id = cleanID(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func syntheticID(rec model.MessageRecord) string {
	sum := sha1.Sum([]byte(rec.SenderAddress + "|" + rec.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + rec.Subject))
	return "anon:" + hex.EncodeToString(sum[:8])
}

// preferred reports whether a should replace b when both share an id.
// Every field that grouping or output reads takes part, so the winner
// does not depend on input order.
func preferred(a, b model.MessageRecord) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	ka, kb := recordKey(a), recordKey(b)
	for i := range ka {
		if ka[i] != kb[i] {
			return ka[i] < kb[i]
		}
	}
	return false
}

func recordKey(r model.MessageRecord) [8]string {
	return [8]string{
		r.Subject,
		r.SenderAddress,
		r.SenderName,
		r.InReplyTo,
		strings.Join(r.References, " "),
		strings.Join(r.Labels, "|"),
		r.Link,
		r.Body,
	}
}

type resolver struct {
	index map[string]model.MessageRecord
	roots map[string]string
}

// parent returns the identifier of the record's direct parent inside the
// index, or "" when there is none. In-Reply-To wins; otherwise the
// newest References entry that is present in the index is used.
func (r *resolver) parent(id string) string {
	rec := r.index[id]
	if p := rec.InReplyTo; p != "" && p != id {
		if _, ok := r.index[p]; ok {
			return p
		}
	}
	for i := len(rec.References) - 1; i >= 0; i-- {
		ref := rec.References[i]
		if ref == id {
			continue
		}
		if _, ok := r.index[ref]; ok {
			return ref
		}
	}
	return ""
}

// root walks parent links from id. A walk that revisits a node has found
// a cycle; the cycle's smallest identifier becomes the root so that every
// walk entering the same cycle agrees.
func (r *resolver) root(id string) string {
	visited := make(map[string]int)
	var path []string
	var root string

	cur := id
	for {
		if known, ok := r.roots[cur]; ok {
			root = known
			break
		}
		if pos, ok := visited[cur]; ok {
			root = minID(path[pos:])
			break
		}
		visited[cur] = len(path)
		path = append(path, cur)

		p := r.parent(cur)
		if p == "" {
			root = cur
			break
		}
		cur = p
	}

	for _, n := range path {
		r.roots[n] = root
	}
	return root
}

func minID(ids []string) string {
	m := ids[0]
	for _, id := range ids[1:] {
		if id < m {
			m = id
		}
	}
	return m
}

// clusterBySubject groups header singletons whose normalized subjects
// match, chaining members while each gap to the previous member stays
// within window. Records with an empty normalized subject stay alone.
func clusterBySubject(records []model.MessageRecord, window time.Duration) [][]string {
	type keyed struct {
		norm string
		rec  model.MessageRecord
	}
	items := make([]keyed, 0, len(records))
	for _, rec := range records {
		items = append(items, keyed{norm: NormalizeSubject(rec.Subject), rec: rec})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].norm != items[j].norm {
			return items[i].norm < items[j].norm
		}
		if !items[i].rec.Timestamp.Equal(items[j].rec.Timestamp) {
			return items[i].rec.Timestamp.Before(items[j].rec.Timestamp)
		}
		return items[i].rec.ID < items[j].rec.ID
	})

	var clusters [][]string
	for i, it := range items {
		if i > 0 && window > 0 && it.norm != "" {
			prev := items[i-1]
			if prev.norm == it.norm && it.rec.Timestamp.Sub(prev.rec.Timestamp) <= window {
				last := len(clusters) - 1
				clusters[last] = append(clusters[last], it.rec.ID)
				continue
			}
		}
		clusters = append(clusters, []string{it.rec.ID})
	}
	return clusters
}

func newGroup(index map[string]model.MessageRecord, ids []string) model.ThreadGroup {
	msgs := make([]model.MessageRecord, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, index[id])
	}
	model.SortRecordsChronologically(msgs)

	seen := make(map[string]bool)
	var participants []string
	for _, m := range msgs {
		addr := normalizeAddress(m.SenderAddress)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		participants = append(participants, addr)
	}

	subject := StripPrefixes(msgs[0].Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	return model.ThreadGroup{
		ID:           groupID(msgs),
		Messages:     msgs,
		IsThread:     len(msgs) > 1,
		Participants: participants,
		Subject:      subject,
	}
}

// groupID is the oldest member's identifier. For header threads that is
// the root in all but cyclic cases, where it is still stable.
func groupID(msgs []model.MessageRecord) string {
	return msgs[0].ID
}
