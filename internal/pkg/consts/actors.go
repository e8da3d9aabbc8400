package consts

// Actor identifies who triggered a terminal transition.
type Actor string

const (
	ActorFSP      Actor = "FSP"
	ActorEmployee Actor = "EMPLOYEE"
	ActorEmployer Actor = "EMPLOYER"
	ActorSystem   Actor = "SYSTEM"
)

// ValidActor reports whether a is one of the fixed actor values.
func ValidActor(a Actor) bool {
	switch a {
	case ActorFSP, ActorEmployee, ActorEmployer, ActorSystem:
		return true
	}
	return false
}
