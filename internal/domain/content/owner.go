package content

type OwnerKind int

const (
	OwnerBook OwnerKind = iota + 1
	OwnerProposal
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerBook:
		return "book"
	case OwnerProposal:
		return "proposal"
	default:
		return "unknown"
	}
}

// Owner is the item an asset belongs to. Exactly one of Book and Proposal is
// set, matching Kind.
type Owner struct {
	Kind     OwnerKind
	Book     *Book
	Proposal *Proposal
}

func BookOwner(b *Book) Owner         { return Owner{Kind: OwnerBook, Book: b} }
func ProposalOwner(p *Proposal) Owner { return Owner{Kind: OwnerProposal, Proposal: p} }

func (o Owner) ID() string {
	if o.Kind == OwnerProposal {
		return o.Proposal.ID
	}
	return o.Book.ID
}

func (o Owner) Title() string {
	if o.Kind == OwnerProposal {
		return o.Proposal.Title
	}
	return o.Book.Title
}

func (o Owner) Price() int64 {
	if o.Kind == OwnerProposal {
		return o.Proposal.Price
	}
	return o.Book.Price
}

func (o Owner) Tracks() []AudioTrack {
	if o.Kind == OwnerProposal {
		return o.Proposal.Audiobooks
	}
	return o.Book.Audiobooks
}

func (o Owner) file() Asset {
	if o.Kind == OwnerProposal {
		return o.Proposal.File
	}
	return o.Book.File
}

func (o Owner) cover() Asset {
	if o.Kind == OwnerProposal {
		return o.Proposal.Cover
	}
	return o.Book.Cover
}

// Asset returns the asset in the given slot. For audiobooks trackID selects
// the track; an empty trackID selects the first one.
func (o Owner) Asset(kind AssetKind, trackID string) (Asset, bool) {
	var a Asset
	switch kind {
	case KindBook:
		a = o.file()
	case KindCover:
		a = o.cover()
	case KindAudiobook:
		tracks := o.Tracks()
		for _, t := range tracks {
			if trackID == "" || t.ID == trackID {
				a = t.Asset
				break
			}
		}
	}
	return a, !a.IsZero()
}

// Locate finds which slot of the owner holds assetID.
func (o Owner) Locate(assetID string) (AssetKind, string, bool) {
	if assetID == "" {
		return "", "", false
	}
	if o.file().AssetID == assetID {
		return KindBook, "", true
	}
	if o.cover().AssetID == assetID {
		return KindCover, "", true
	}
	for _, t := range o.Tracks() {
		if t.Asset.AssetID == assetID || t.ID == assetID {
			return KindAudiobook, t.ID, true
		}
	}
	return "", "", false
}
