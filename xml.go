package crdtstore

// XMLFragment is a thin facade over a sequence-shaped Branch holding a
// forest of XmlElement/XmlText children with no element of its own.
type XMLFragment struct {
	branch *Branch
	doc    *Document
}

func (f *XMLFragment) Branch() *Branch { return f.branch }

// Len returns the number of live top-level children.
func (f *XMLFragment) Len() int { return f.branch.contentLen }

// InsertElement inserts a new XmlElement named tag at index and returns it.
func (f *XMLFragment) InsertElement(txn *Txn, index int, tag string) (*XMLElement, error) {
	pos, err := txn.indexToPosition(f.branch, index)
	if err != nil {
		return nil, err
	}
	nested := NewBranch(TypeXMLElement)
	nested.Name = tag
	txn.createItem(pos, nil, NewContentType(nested))
	return &XMLElement{branch: nested, doc: f.doc}, nil
}

// InsertText inserts a new XmlText node at index and returns it.
func (f *XMLFragment) InsertText(txn *Txn, index int) (*XMLText, error) {
	pos, err := txn.indexToPosition(f.branch, index)
	if err != nil {
		return nil, err
	}
	nested := NewBranch(TypeXMLText)
	txn.createItem(pos, nil, NewContentType(nested))
	return &XMLText{branch: nested, doc: f.doc}, nil
}

// Delete removes length children starting at index.
func (f *XMLFragment) Delete(txn *Txn, index, length int) int {
	return txn.deleteRange(f.branch, index, length)
}

// XMLElement is a thin facade over a sequence-shaped Branch (its children)
// that also carries a keyed attribute map, reusing Branch.Map the same way
// a plain Map does.
type XMLElement struct {
	branch *Branch
	doc    *Document
}

func (e *XMLElement) Branch() *Branch { return e.branch }

// Tag returns the element's tag name.
func (e *XMLElement) Tag() string { return e.branch.Name }

// Len returns the number of live children.
func (e *XMLElement) Len() int { return e.branch.contentLen }

// SetAttribute sets a keyed attribute on the element.
func (e *XMLElement) SetAttribute(txn *Txn, key string, value any) {
	key2 := key
	txn.createItem(position{branch: e.branch}, &key2, NewContentJSON(value))
}

// GetAttribute returns the current value of a keyed attribute.
func (e *XMLElement) GetAttribute(key string) (any, bool) {
	c, ok := e.branch.Get(key)
	if !ok {
		return nil, false
	}
	if j, ok := c.(*ContentJSON); ok && len(j.Values) > 0 {
		return j.Values[0], true
	}
	return nil, true
}

// RemoveAttribute deletes a keyed attribute.
func (e *XMLElement) RemoveAttribute(txn *Txn, key string) bool {
	return txn.deleteKey(e.branch, key)
}

// InsertElement inserts a child XmlElement at index.
func (e *XMLElement) InsertElement(txn *Txn, index int, tag string) (*XMLElement, error) {
	pos, err := txn.indexToPosition(e.branch, index)
	if err != nil {
		return nil, err
	}
	nested := NewBranch(TypeXMLElement)
	nested.Name = tag
	txn.createItem(pos, nil, NewContentType(nested))
	return &XMLElement{branch: nested, doc: e.doc}, nil
}

// InsertText inserts a child XmlText node at index.
func (e *XMLElement) InsertText(txn *Txn, index int) (*XMLText, error) {
	pos, err := txn.indexToPosition(e.branch, index)
	if err != nil {
		return nil, err
	}
	nested := NewBranch(TypeXMLText)
	txn.createItem(pos, nil, NewContentType(nested))
	return &XMLText{branch: nested, doc: e.doc}, nil
}

// Delete removes length children starting at index.
func (e *XMLElement) Delete(txn *Txn, index, length int) int {
	return txn.deleteRange(e.branch, index, length)
}

// XMLText is a thin facade identical to Text, distinguished only by its
// TypeRef so it can sit inside an XmlFragment/XmlElement tree.
type XMLText struct {
	branch *Branch
	doc    *Document
}

func (x *XMLText) Branch() *Branch { return x.branch }

func (x *XMLText) Len() int { return x.branch.contentLen }

func (x *XMLText) Insert(txn *Txn, index int, s string) error {
	pos, err := txn.indexToPosition(x.branch, index)
	if err != nil {
		return err
	}
	txn.createItem(pos, nil, NewContentString(s))
	return nil
}

func (x *XMLText) Delete(txn *Txn, index, length int) int {
	return txn.deleteRange(x.branch, index, length)
}

func (x *XMLText) String() string {
	t := &Text{branch: x.branch, doc: x.doc}
	return t.String()
}
