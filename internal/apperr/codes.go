package apperr

// Kind is the broad class of a failure. Callers branch on Kind; Code carries
// the precise reason.
type Kind string

const (
	KindValidation = Kind("VALIDATION")
	KindNotFound   = Kind("NOT_FOUND")
	KindConflict   = Kind("CONFLICT")
	KindForbidden  = Kind("FORBIDDEN")
	KindDependency = Kind("DEPENDENCY_FAILURE")
)

// Code is a machine-readable error code.
type Code string

const (
	// Validation errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidID       Code = "INVALID_ID"
	CodeInvalidName     Code = "INVALID_NAME"
	CodeInvalidStatus   Code = "INVALID_STATUS"

	// Lookup errors
	CodeGroupNotFound      Code = "GROUP_NOT_FOUND"
	CodeInviteNotFound     Code = "INVITE_NOT_FOUND"
	CodeTaskNotFound       Code = "TASK_NOT_FOUND"
	CodeMemberNotFound     Code = "MEMBER_NOT_FOUND"
	CodeAssignmentNotFound Code = "ASSIGNMENT_NOT_FOUND"
	CodeNotInGroup         Code = "NOT_IN_GROUP"

	// Invariant violations
	CodeAlreadyInGroup      Code = "ALREADY_IN_GROUP"
	CodeAlreadyMember       Code = "ALREADY_MEMBER"
	CodeGroupFull           Code = "GROUP_FULL"
	CodeAlreadyOwner        Code = "ALREADY_OWNER"
	CodeDuplicateAssignment Code = "DUPLICATE_ASSIGNMENT"
	CodeEmailTaken          Code = "EMAIL_TAKEN"

	// Role errors
	CodeNotOwner          Code = "NOT_OWNER"
	CodeNotAMember        Code = "NOT_A_MEMBER"
	CodeCannotRemoveOwner Code = "CANNOT_REMOVE_OWNER"
	CodeNoPermission      Code = "NO_PERMISSION"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"

	// Store and directory failures
	CodeDependencyFailure Code = "DEPENDENCY_FAILURE"
)

// Kind returns the class the code belongs to. Unknown codes are treated as
// dependency failures.
func (c Code) Kind() Kind {
	switch c {
	case CodeInvalidArgument, CodeInvalidID, CodeInvalidName, CodeInvalidStatus:
		return KindValidation
	case CodeGroupNotFound, CodeInviteNotFound, CodeTaskNotFound, CodeMemberNotFound,
		CodeAssignmentNotFound, CodeNotInGroup:
		return KindNotFound
	case CodeAlreadyInGroup, CodeAlreadyMember, CodeGroupFull, CodeAlreadyOwner,
		CodeDuplicateAssignment, CodeEmailTaken:
		return KindConflict
	case CodeNotOwner, CodeNotAMember, CodeCannotRemoveOwner, CodeNoPermission, CodeUnauthenticated:
		return KindForbidden
	default:
		return KindDependency
	}
}
