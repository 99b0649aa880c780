// Copyright 2023 Kepler Network Contributors
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package net

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/ipfs/go-cid"
	ipld "github.com/ipfs/go-ipld-format"
	dag "github.com/ipfs/go-merkledag"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/keplernet/orbitd/errors"
)

// DocId identifies a collaborative document: a group of writer-scoped
// append-only streams that share a peer set, per spec.md §3.
type DocId string

// StreamId identifies a single writer-scoped substream within a document.
type StreamId string

// Head is a monotonic offset into a stream, pointing at the stream's tip
// block.
type Head struct {
	Stream StreamId
	Offset uint64
	Tip    cid.Cid
}

// SignedHead is a Head signed by its writer, so replicas can verify a head
// update came from the stream's owner before accepting it, per spec.md §3
// ("Heads carry a signed monotonic offset").
type SignedHead struct {
	Head      Head
	Signer    peer.ID
	Signature []byte
}

// headBytes returns the canonical bytes a SignedHead's signature covers.
func (h Head) headBytes() ([]byte, error) {
	return encodeCBOR(h)
}

// sign produces a SignedHead for h using priv, whose public key must
// correspond to signer.
func signHead(h Head, signer peer.ID, priv crypto.PrivKey) (SignedHead, error) {
	msg, err := h.headBytes()
	if err != nil {
		return SignedHead{}, errors.Wrap("failed to encode head", err)
	}
	sig, err := priv.Sign(msg)
	if err != nil {
		return SignedHead{}, errors.Wrap("failed to sign head", err)
	}
	return SignedHead{Head: h, Signer: signer, Signature: sig}, nil
}

// verify reports whether sh's signature is valid for its claimed signer.
func (sh SignedHead) verify() (bool, error) {
	msg, err := sh.Head.headBytes()
	if err != nil {
		return false, err
	}
	pub, err := sh.Signer.ExtractPublicKey()
	if err != nil {
		return false, errors.Wrap("failed to extract signer public key", err)
	}
	return pub.Verify(msg, sh.Signature)
}

// StreamReader exposes a read-only byte range of a stream's appended data.
type StreamReader struct {
	*bytes.Reader
}

// LocalStreamWriter appends data to a stream this node owns, advancing its
// signed head on every write.
type LocalStreamWriter struct {
	store  *streamStore
	doc    DocId
	stream StreamId
	priv   crypto.PrivKey
	local  peer.ID
}

// Append writes data as the next block of the stream and publishes the new
// signed head to subscribers.
func (w *LocalStreamWriter) Append(ctx context.Context, data []byte) (SignedHead, error) {
	return w.store.append(ctx, w.doc, w.stream, data, w.local, w.priv)
}

// streamEntry is one appended block plus its offset within a stream.
type streamEntry struct {
	offset uint64
	node   ipld.Node
}

// streamState is the behaviour's bookkeeping for a single substream.
type streamState struct {
	entries []streamEntry
	head    SignedHead
}

// docState groups every substream belonging to one document, plus the peer
// set replicating it.
type docState struct {
	streams map[StreamId]*streamState
	peers   map[peer.ID]struct{}
}

// streamStore implements the collaborative append-only stream sub-protocol
// (spec.md §4.2): document/substream enumeration, peer-set management, head
// inspection/update, byte-range slice reads, append-writer creation, and
// head-update subscriptions. Blocks are modelled as a Merkle DAG via
// go-merkledag/go-ipld-format, mirroring the teacher's own DAG service
// wiring in net/peer.go (setupDAGService).
type streamStore struct {
	mu    sync.Mutex
	dag   ipld.DAGService
	docs  map[DocId]*docState
	heads *eventBroadcaster[SignedHead]
}

func newStreamStore(dagService ipld.DAGService) *streamStore {
	return &streamStore{
		dag:   dagService,
		docs:  make(map[DocId]*docState),
		heads: newEventBroadcaster[SignedHead](),
	}
}

func (s *streamStore) docState(doc DocId) *docState {
	d, ok := s.docs[doc]
	if !ok {
		d = &docState{streams: make(map[StreamId]*streamState), peers: make(map[peer.ID]struct{})}
		s.docs[doc] = d
	}
	return d
}

// Docs lists every known document id.
func (s *streamStore) Docs() []DocId {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DocId, 0, len(s.docs))
	for id := range s.docs {
		out = append(out, id)
	}
	return out
}

// Streams lists every known substream id across all documents.
func (s *streamStore) Streams() []StreamId {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StreamId
	for _, d := range s.docs {
		for id := range d.streams {
			out = append(out, id)
		}
	}
	return out
}

// Substreams lists the substream ids belonging to doc.
func (s *streamStore) Substreams(doc DocId) []StreamId {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[doc]
	if !ok {
		return nil
	}
	out := make([]StreamId, 0, len(d.streams))
	for id := range d.streams {
		out = append(out, id)
	}
	return out
}

// AddPeers adds peers to doc's replicating peer set.
func (s *streamStore) AddPeers(doc DocId, peers []peer.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docState(doc)
	for _, p := range peers {
		d.peers[p] = struct{}{}
	}
}

// Head returns the current signed head of a substream, if it exists.
func (s *streamStore) Head(id StreamId) (SignedHead, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if st, ok := d.streams[id]; ok {
			return st.head, true
		}
	}
	return SignedHead{}, false
}

// Slice reads a byte range [start, start+length) from a substream by
// concatenating its appended blocks, matching spec.md §3's "slices are
// read-only byte ranges".
func (s *streamStore) Slice(id StreamId, start, length uint64) (StreamReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st *streamState
	for _, d := range s.docs {
		if found, ok := d.streams[id]; ok {
			st = found
			break
		}
	}
	if st == nil {
		return StreamReader{}, errors.New("unknown stream id")
	}
	var all bytes.Buffer
	for _, e := range st.entries {
		all.Write(e.node.RawData())
	}
	data := all.Bytes()
	if start > uint64(len(data)) {
		start = uint64(len(data))
	}
	end := start + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return StreamReader{Reader: bytes.NewReader(data[start:end])}, nil
}

// SliceSnapshotCid canonically encodes the [start, start+length) byte range
// of a stream and returns its content id, without storing it, so a caller
// can quote a stable identifier for a range (e.g. in a URI) before deciding
// whether to pin it. Uses fxamacker/cbor's canonical encoding so repeated
// calls for the same range always produce the same bytes, and therefore the
// same CID.
func (s *streamStore) SliceSnapshotCid(id StreamId, start, length uint64) (cid.Cid, error) {
	reader, err := s.Slice(id, start, length)
	if err != nil {
		return cid.Undef, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return cid.Undef, errors.Wrap("failed to read slice for snapshot", err)
	}
	encoded, err := encodeSliceSnapshot(streamSliceSnapshot{Stream: id, Start: start, Length: length, Data: data})
	if err != nil {
		return cid.Undef, errors.Wrap("failed to encode slice snapshot", err)
	}
	return CidForBlock(encoded, cid.Raw)
}

// Remove drops a substream and its blocks from local bookkeeping.
func (s *streamStore) Remove(id StreamId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if _, ok := d.streams[id]; ok {
			delete(d.streams, id)
			return nil
		}
	}
	return errors.New("unknown stream id")
}

// Append creates (if absent) and appends to doc's local substream, owned by
// local, advancing and broadcasting its signed head.
func (s *streamStore) append(ctx context.Context, doc DocId, id StreamId, data []byte, local peer.ID, priv crypto.PrivKey) (SignedHead, error) {
	node := dag.NodeWithData(data)
	if err := s.dag.Add(ctx, node); err != nil {
		return SignedHead{}, errors.Wrap("failed to add stream block to dag", err)
	}

	s.mu.Lock()
	d := s.docState(doc)
	st, ok := d.streams[id]
	if !ok {
		st = &streamState{}
		d.streams[id] = st
	}
	offset := uint64(len(st.entries))
	st.entries = append(st.entries, streamEntry{offset: offset, node: node})
	s.mu.Unlock()

	signed, err := signHead(Head{Stream: id, Offset: offset + 1, Tip: node.Cid()}, local, priv)
	if err != nil {
		return SignedHead{}, err
	}

	s.mu.Lock()
	st.head = signed
	s.mu.Unlock()

	s.heads.publish(signed)
	return signed, nil
}

// UpdateHead accepts a remote signed head for a replicated stream, after
// verifying its signature.
func (s *streamStore) UpdateHead(doc DocId, sh SignedHead) error {
	ok, err := sh.verify()
	if err != nil {
		return errors.Wrap("failed to verify signed head", err)
	}
	if !ok {
		return errors.New("invalid head signature")
	}
	s.mu.Lock()
	d := s.docState(doc)
	st, exists := d.streams[sh.Head.Stream]
	if !exists {
		st = &streamState{}
		d.streams[sh.Head.Stream] = st
	}
	if sh.Head.Offset > st.head.Head.Offset {
		st.head = sh
	}
	s.mu.Unlock()

	s.heads.publish(sh)
	return nil
}

// SubscribeHeads returns a stream of every subsequent head update across
// all streams, and a cancel func to stop receiving them.
func (s *streamStore) SubscribeHeads() (<-chan SignedHead, func()) {
	return s.heads.subscribe(32)
}

// NewAppendWriter creates a LocalStreamWriter for doc's local substream.
func (s *streamStore) NewAppendWriter(doc DocId, local peer.ID, priv crypto.PrivKey) *LocalStreamWriter {
	return &LocalStreamWriter{store: s, doc: doc, stream: StreamId(doc) + "/local", priv: priv, local: local}
}
