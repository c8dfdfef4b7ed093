package store

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

var (
	nodesBucket = []byte("nodes")
	metaBucket  = []byte("meta")
)

// MetadataBuckets lists the buckets a node metadata database carries.
func MetadataBuckets() [][]byte {
	return [][]byte{nodesBucket, metaBucket}
}

// OpenNodeStore opens a recoverable node metadata database at path.
func OpenNodeStore(path string) (*Recoverable, error) {
	return OpenRecoverable("metadata", path, MetadataBuckets()...)
}

// NodeStore exposes node replica operations over the live half of a
// Recoverable. All multi-node mutations commit in a single transaction.
type NodeStore struct {
	source func() (*bolt.DB, error)
}

// NewNodeStore binds a NodeStore to the live database of r. After a
// resync swap the store transparently follows the promoted file.
func NewNodeStore(r *Recoverable) *NodeStore {
	return &NodeStore{source: r.DB}
}

// NewRecoveryNodeStore binds a NodeStore to the recovery database of r.
// The bulk refresh writes into this store.
func NewRecoveryNodeStore(r *Recoverable) *NodeStore {
	return &NodeStore{source: r.RecoveryDB}
}

// PutNode persists one node.
func (s *NodeStore) PutNode(n Node) error {
	return s.PutNodes([]Node{n})
}

// PutNodes persists nodes in one transaction.
func (s *NodeStore) PutNodes(nodes []Node) error {
	db, err := s.source()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		for _, n := range nodes {
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(n.NodeID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetNode returns the node with the given ID, or nil if not found.
func (s *NodeStore) GetNode(nodeID string) (*Node, error) {
	db, err := s.source()
	if err != nil {
		return nil, err
	}

	var n *Node
	err = db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(nodesBucket).Get([]byte(nodeID))
		if v == nil {
			return nil
		}

		n = &Node{}

		return json.Unmarshal(v, n)
	})

	return n, err
}

// DeleteNode physically removes a node record.
func (s *NodeStore) DeleteNode(nodeID string) error {
	return s.DeleteNodes([]string{nodeID})
}

// DeleteNodes physically removes node records in one transaction.
func (s *NodeStore) DeleteNodes(nodeIDs []string) error {
	db, err := s.source()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		for _, id := range nodeIDs {
			if err := b.Delete([]byte(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllNodes returns every node keyed by node ID.
func (s *NodeStore) AllNodes() (map[string]Node, error) {
	db, err := s.source()
	if err != nil {
		return nil, err
	}

	result := make(map[string]Node)
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(k, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}

			result[string(k)] = n

			return nil
		})
	})

	return result, err
}

// Count returns the number of stored nodes.
func (s *NodeStore) Count() (int, error) {
	db, err := s.source()
	if err != nil {
		return 0, err
	}

	count := 0
	err = db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(nodesBucket).Stats().KeyN
		return nil
	})

	return count, err
}

// BurstChildren returns the burst/variant photos of a main photo.
func (s *NodeStore) BurstChildren(mainPhotoID string) ([]Node, error) {
	db, err := s.source()
	if err != nil {
		return nil, err
	}

	var children []Node
	err = db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(_, v []byte) error {
			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.MainPhotoID == mainPhotoID {
				children = append(children, n)
			}
			return nil
		})
	})

	return children, err
}

// MarkDeleted sets the given nodes to the deleted state in one
// transaction. Missing IDs are skipped: the replica is allowed to lag
// behind the server.
func (s *NodeStore) MarkDeleted(nodeIDs []string) error {
	return s.setState(nodeIDs, NodeDeleted, false)
}

// MarkToBeDeleted marks the given nodes and all of their descendants for
// deferred physical removal, in one transaction.
func (s *NodeStore) MarkToBeDeleted(nodeIDs []string) error {
	return s.setState(nodeIDs, NodeToBeDeleted, true)
}

func (s *NodeStore) setState(nodeIDs []string, state NodeState, recursive bool) error {
	db, err := s.source()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucket)

		targets := make(map[string]struct{}, len(nodeIDs))
		for _, id := range nodeIDs {
			targets[id] = struct{}{}
		}

		if recursive {
			if err := expandDescendants(b, targets); err != nil {
				return err
			}
		}

		for id := range targets {
			v := b.Get([]byte(id))
			if v == nil {
				continue
			}

			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			n.State = state

			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// expandDescendants grows targets to include every node whose ancestor
// chain reaches a target. Iterates until a full pass adds nothing.
func expandDescendants(b *bolt.Bucket, targets map[string]struct{}) error {
	for {
		added := false
		err := b.ForEach(func(k, v []byte) error {
			if _, ok := targets[string(k)]; ok {
				return nil
			}

			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if _, ok := targets[n.ParentID]; ok {
				targets[string(k)] = struct{}{}
				added = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !added {
			return nil
		}
	}
}

// ApplyMoves reparents the given nodes and applies their confirmed move
// updates in ONE transaction: the whole reconciliation pass commits or
// rolls back together. Only anonymous-provenance updates rewrite the
// signature fields.
func (s *NodeStore) ApplyMoves(newParentID string, updates []MoveUpdate) error {
	db, err := s.source()
	if err != nil {
		return err
	}

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(nodesBucket)
		for _, u := range updates {
			v := b.Get([]byte(u.NodeID))
			if v == nil {
				return fmt.Errorf("applying move: node %s not in replica", u.NodeID)
			}

			var n Node
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}

			n.Name = u.Name
			n.NameHash = u.NameHash
			n.NodePassphrase = u.NodePassphrase
			if u.Anonymous {
				if u.PassphraseSignature != "" {
					n.NodePassphraseSignature = u.PassphraseSignature
				}
				n.SignatureEmail = u.SignatureEmail
				n.NameSignatureEmail = u.SignatureEmail
			}
			n.ParentID = newParentID

			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(u.NodeID), data); err != nil {
				return err
			}
		}
		return nil
	})
}
