package store

// Popup identifies one of the closed set of UI surfaces. The set is
// enumerated deliberately: there is no dynamic string-keyed flag bag.
type Popup int

const (
	PopupSetting Popup = iota
	PopupAddBook
	PopupReadBook
	PopupRecordBook
	PopupReturnBook
	PopupAddNewAdmin
)

// PopupState holds one visibility flag per surface.
type PopupState struct {
	Setting     bool
	AddBook     bool
	ReadBook    bool
	RecordBook  bool
	ReturnBook  bool
	AddNewAdmin bool
}

// PopupOutcome is a popup visibility change.
type PopupOutcome interface{ isPopupOutcome() }

// PopupToggled flips one surface's flag.
type PopupToggled struct {
	Popup Popup
}

// PopupsCleared closes every surface atomically.
type PopupsCleared struct{}

func (PopupToggled) isPopupOutcome()  {}
func (PopupsCleared) isPopupOutcome() {}

// ReducePopup is the pure reducer for the popup slice.
func ReducePopup(s PopupState, o PopupOutcome) PopupState {
	switch v := o.(type) {
	case PopupToggled:
		switch v.Popup {
		case PopupSetting:
			s.Setting = !s.Setting
		case PopupAddBook:
			s.AddBook = !s.AddBook
		case PopupReadBook:
			s.ReadBook = !s.ReadBook
		case PopupRecordBook:
			s.RecordBook = !s.RecordBook
		case PopupReturnBook:
			s.ReturnBook = !s.ReturnBook
		case PopupAddNewAdmin:
			s.AddNewAdmin = !s.AddNewAdmin
		}
	case PopupsCleared:
		s = PopupState{}
	}
	return s
}
