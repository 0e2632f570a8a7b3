package hierarchy

import (
	"errors"
	"log/slog"

	"hr_portal/portal/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrMemberNotFound covers both a missing profile and a profile that
	// belongs to a different department, so a caller cannot distinguish the
	// two cases from the error alone.
	ErrMemberNotFound = errors.New("member not found in department")

	ErrCircularReference = errors.New("circular reference")
)

func getMember(db *gorm.DB, deptId, memberId uuid.UUID) (schema.UserProfile, error) {
	var member schema.UserProfile
	result := db.First(&member, "id = ? and department_id = ?", memberId, deptId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return member, ErrMemberNotFound
		}
		slog.Error("sql error loading department member", "department_id", deptId, "member_id", memberId, "error", result.Error)
		return member, schema.ErrDbAccessFailed
	}
	return member, nil
}

// SetParent points memberId's reports_to at newParentId, or clears it when
// newParentId is nil. Both profiles must belong to deptId. The call is
// rejected with ErrCircularReference if the parent's chain of managers
// already leads to memberId; nothing is mutated in that case. Only the
// reports_to field changes, sibling order is untouched.
func SetParent(db *gorm.DB, deptId, memberId uuid.UUID, newParentId *uuid.UUID) error {
	member, err := getMember(db, deptId, memberId)
	if err != nil {
		return err
	}

	if newParentId != nil {
		parent, err := getMember(db, deptId, *newParentId)
		if err != nil {
			return err
		}

		if err := checkForCycle(db, deptId, memberId, parent); err != nil {
			return err
		}
	}

	result := db.Model(&schema.UserProfile{Id: member.Id}).Update("reports_to_id", newParentId)
	if result.Error != nil {
		slog.Error("sql error updating reports_to", "member_id", memberId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	return nil
}

// checkForCycle walks upward from the candidate parent. The walk is bounded
// by the department's member count so it terminates even if the stored
// relation is already corrupt.
func checkForCycle(db *gorm.DB, deptId, memberId uuid.UUID, parent schema.UserProfile) error {
	if parent.Id == memberId {
		return ErrCircularReference
	}

	var maxHops int64
	result := db.Model(&schema.UserProfile{}).Where("department_id = ?", deptId).Count(&maxHops)
	if result.Error != nil {
		slog.Error("sql error counting department members", "department_id", deptId, "error", result.Error)
		return schema.ErrDbAccessFailed
	}

	check := parent
	for hops := int64(0); check.ReportsToId != nil; hops++ {
		if hops > maxHops {
			return ErrCircularReference
		}
		if *check.ReportsToId == memberId {
			return ErrCircularReference
		}

		next, err := getMember(db, deptId, *check.ReportsToId)
		if err != nil {
			if errors.Is(err, ErrMemberNotFound) {
				// Chain leaves the department, so it cannot loop back.
				return nil
			}
			return err
		}
		check = next
	}

	return nil
}

// Reorder assigns hierarchy_order = position for each id in the given order.
// Ids that do not resolve to a member of deptId are skipped without error.
func Reorder(db *gorm.DB, deptId uuid.UUID, orderedMemberIds []uuid.UUID) error {
	for i, memberId := range orderedMemberIds {
		result := db.Model(&schema.UserProfile{}).
			Where("id = ? and department_id = ?", memberId, deptId).
			Update("hierarchy_order", i)
		if result.Error != nil {
			slog.Error("sql error updating hierarchy order", "member_id", memberId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
	}
	return nil
}

type Node struct {
	Id         uuid.UUID `json:"id"`
	UserId     uuid.UUID `json:"user_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	JobTitle   string    `json:"job_title"`
	IsManager  bool      `json:"is_manager"`
	HasPicture bool      `json:"has_picture"`
	PictureUrl string    `json:"picture_url"`
	Initials   string    `json:"initials"`
	Children   []Node    `json:"children"`
}

const noTitlePlaceholder = "No title"

func newNode(member *schema.UserProfile) Node {
	jobTitle := member.JobTitle
	if jobTitle == "" {
		jobTitle = noTitlePlaceholder
	}

	return Node{
		Id:         member.Id,
		UserId:     member.UserId,
		FirstName:  member.User.FirstName,
		LastName:   member.User.LastName,
		JobTitle:   jobTitle,
		IsManager:  member.User.IsManager,
		HasPicture: member.Picture != "",
		PictureUrl: member.Picture,
		Initials:   initials(member.User.FirstName, member.User.LastName),
		Children:   []Node{},
	}
}

func initials(firstName, lastName string) string {
	return firstLetter(firstName) + firstLetter(lastName)
}

func firstLetter(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// BuildTree loads every member of deptId and groups them into the reporting
// forest. Siblings appear in hierarchy_order, ties broken by load order.
// Members whose reports_to points outside the loaded set end up in the
// second return value instead of being dropped.
func BuildTree(db *gorm.DB, deptId uuid.UUID) ([]Node, []Node, error) {
	members, err := schema.GetDepartmentMembers(deptId, db)
	if err != nil {
		return nil, nil, err
	}

	childIdxs := make(map[uuid.UUID][]int, len(members))
	rootIdxs := make([]int, 0)
	for i := range members {
		if members[i].ReportsToId == nil {
			rootIdxs = append(rootIdxs, i)
		} else {
			childIdxs[*members[i].ReportsToId] = append(childIdxs[*members[i].ReportsToId], i)
		}
	}

	reached := make(map[uuid.UUID]struct{}, len(members))

	var build func(idx int) Node
	build = func(idx int) Node {
		member := &members[idx]
		reached[member.Id] = struct{}{}

		node := newNode(member)
		for _, childIdx := range childIdxs[member.Id] {
			node.Children = append(node.Children, build(childIdx))
		}
		return node
	}

	roots := make([]Node, 0, len(rootIdxs))
	for _, idx := range rootIdxs {
		roots = append(roots, build(idx))
	}

	unassigned := make([]Node, 0)
	for i := range members {
		if _, ok := reached[members[i].Id]; !ok {
			node := newNode(&members[i])
			unassigned = append(unassigned, node)
		}
	}

	return roots, unassigned, nil
}
